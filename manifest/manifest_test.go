package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	doc, err := Parse([]byte(`{"updater":[{"device":"s3","url":"http://h/fw.bin"}]}`))
	require.NoError(t, err)
	require.Len(t, doc.Updater, 1)
	assert.False(t, doc.Updater[0].Force)
	assert.Empty(t, doc.Updater[0].Version)
	assert.Equal(t, "http://h/fw.bin", doc.Updater[0].URL)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`{"updater":`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidManifest))
}

func TestParseEmptyUpdaterList(t *testing.T) {
	doc, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Updater)
}

func TestFilenameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"http://example.com/fw-v1.0.1.bin", "fw-v1.0.1.bin"},
		{"http://example.com/dir/fw.bin?token=abc&x=1", "fw.bin"},
		{"http://example.com/", ""},
		{"no-slash-at-all", ""},
		{"http://example.com/a/b/c.bin", "c.bin"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, FilenameFromURL(c.url), "url %q", c.url)
	}
}

func TestOrdinalGreater(t *testing.T) {
	assert.True(t, OrdinalGreater("1.0.1", "1.0.0"))
	assert.False(t, OrdinalGreater("1.0.0", "1.0.0"))
	assert.False(t, OrdinalGreater("0.9.9", "1.0.0"))
	// The documented byte-wise quirk.
	assert.True(t, OrdinalGreater("2.0", "10.0"))
}

func TestSemanticGreater(t *testing.T) {
	assert.True(t, SemanticGreater("10.0", "2.0"))
	assert.False(t, SemanticGreater("2.0", "10.0"))
	assert.True(t, SemanticGreater("1.0.1", "1.0.0"))
	assert.False(t, SemanticGreater("not-a-version", "1.0.0"))
	assert.False(t, SemanticGreater("1.0.1", "not-a-version"))
}
