package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otakitio/otakit/fetcher"
	"github.com/otakitio/otakit/partition"
)

type imageWriterMock struct {
	buf         bytes.Buffer
	finalizeErr error
	finalized   bool
	aborted     bool
}

func (w *imageWriterMock) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *imageWriterMock) Finalize() error {
	if w.finalizeErr != nil {
		return w.finalizeErr
	}
	w.finalized = true
	return nil
}

func (w *imageWriterMock) Abort() { w.aborted = true }

type platformMock struct {
	writer     *imageWriterMock
	beginErr   error
	beginCalls int
}

func (p *platformMock) Running() *partition.Partition     { return &partition.Partition{Label: "ota_0"} }
func (p *platformMock) NextUpdate() *partition.Partition  { return &partition.Partition{Label: "ota_1"} }
func (p *platformMock) LastInvalid() *partition.Partition { return nil }

func (p *platformMock) State(*partition.Partition) (partition.ImageState, error) {
	return partition.ImageStateValid, nil
}

func (p *platformMock) SetBootPartition(*partition.Partition) error { return nil }
func (p *platformMock) MarkValidCancelRollback() error              { return nil }

func (p *platformMock) BeginImage(size int64) (partition.ImageWriter, error) {
	p.beginCalls++
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.writer, nil
}

type restartMock struct {
	restarted bool
}

func (r *restartMock) Restart() { r.restarted = true }

type recordMock struct {
	saved   string
	saveErr error
}

func (r *recordMock) Save(filename string) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = filename
	return nil
}

func firmwareServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestInstaller(platform *platformMock, record *recordMock, restart *restartMock) *Installer {
	return New(fetcher.New(), platform, record, restart)
}

func TestInstallSuccess(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFE, 0xED}, 2048)
	srv := firmwareServer(t, payload)

	writer := &imageWriterMock{}
	platform := &platformMock{writer: writer}
	record := &recordMock{}
	restart := &restartMock{}
	inst := newTestInstaller(platform, record, restart)

	err := inst.Install(context.Background(), srv.URL+"/fw-v2.bin", "fw-v2.bin")
	require.NoError(t, err)

	assert.Equal(t, payload, writer.buf.Bytes())
	assert.True(t, writer.finalized)
	assert.False(t, writer.aborted)
	assert.Equal(t, "fw-v2.bin", record.saved)
	assert.True(t, restart.restarted)
}

func TestInstallProgressReporting(t *testing.T) {
	payload := make([]byte, 4096)
	srv := firmwareServer(t, payload)

	writer := &imageWriterMock{}
	inst := newTestInstaller(&platformMock{writer: writer}, &recordMock{}, &restartMock{})

	var percents []int
	inst.SetProgressFn(func(percent int, written, total int64) {
		assert.Equal(t, int64(len(payload)), total)
		assert.LessOrEqual(t, written, total)
		percents = append(percents, percent)
	})

	require.NoError(t, inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin"))

	require.NotEmpty(t, percents)
	assert.True(t, sort.IntsAreSorted(percents), "progress must be non-decreasing: %v", percents)
	seen := map[int]bool{}
	for _, p := range percents {
		assert.False(t, seen[p], "percent %d reported twice", p)
		seen[p] = true
	}
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestInstallZeroContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	platform := &platformMock{writer: &imageWriterMock{}}
	restart := &restartMock{}
	inst := newTestInstaller(platform, &recordMock{}, restart)

	err := inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidContentLength))
	// Nothing may be written before the length check.
	assert.Zero(t, platform.beginCalls)
	assert.False(t, restart.restarted)
}

func TestInstallNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	inst := newTestInstaller(&platformMock{writer: &imageWriterMock{}}, &recordMock{}, &restartMock{})

	err := inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
}

func TestInstallInsufficientSpace(t *testing.T) {
	srv := firmwareServer(t, make([]byte, 1024))

	platform := &platformMock{beginErr: errors.New("bank too small")}
	restart := &restartMock{}
	inst := newTestInstaller(platform, &recordMock{}, restart)

	err := inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSpace))
	assert.False(t, restart.restarted)
}

func TestInstallFinalizeFailure(t *testing.T) {
	srv := firmwareServer(t, make([]byte, 1024))

	writer := &imageWriterMock{finalizeErr: errors.New("verification failed")}
	platform := &platformMock{writer: writer}
	record := &recordMock{}
	restart := &restartMock{}
	inst := newTestInstaller(platform, record, restart)

	boot := partition.NewManager(platform, restart)
	labelBefore := boot.BootPartitionLabel()

	err := inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFinalizeFailed))
	assert.False(t, restart.restarted)
	assert.Empty(t, record.saved)
	// A failed finalize never touches the running partition.
	assert.Equal(t, labelBefore, boot.BootPartitionLabel())
}

func TestInstallTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write(make([]byte, 1000))
	}))
	defer srv.Close()

	writer := &imageWriterMock{}
	restart := &restartMock{}
	inst := newTestInstaller(&platformMock{writer: writer}, &recordMock{}, restart)

	err := inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.True(t, writer.aborted)
	assert.False(t, writer.finalized)
	assert.False(t, restart.restarted)
}

func TestInstallRecordFailureDoesNotBlockReboot(t *testing.T) {
	srv := firmwareServer(t, make([]byte, 256))

	record := &recordMock{saveErr: errors.New("eeprom worn out")}
	restart := &restartMock{}
	inst := newTestInstaller(&platformMock{writer: &imageWriterMock{}}, record, restart)

	require.NoError(t, inst.Install(context.Background(), srv.URL+"/fw.bin", "fw.bin"))
	assert.True(t, restart.restarted)
}

func TestInstallDerivesFilenameFromURL(t *testing.T) {
	srv := firmwareServer(t, make([]byte, 256))

	record := &recordMock{}
	inst := newTestInstaller(&platformMock{writer: &imageWriterMock{}}, record, &restartMock{})

	require.NoError(t, inst.Install(context.Background(), srv.URL+"/fw-v3.bin?token=x", ""))
	assert.Equal(t, "fw-v3.bin", record.saved)
}
