package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/otakitio/otakit/util"
)

const (
	configFlag         = "config"
	logLevelFlag       = "log-level"
	logFileFlag        = "log-file"
	manifestURLFlag    = "manifest-url"
	currentVersionFlag = "current-version"
	checkIntervalFlag  = "check-interval"
	tlsVerifyFlag      = "tls-verify"
)

var (
	configPath     string
	logLevel       string
	logFile        string
	manifestURL    string
	currentVersion string
	checkInterval  int
	tlsVerify      bool

	rootCmd = &cobra.Command{
		Use:          "otad",
		Short:        "OTA firmware update agent for dual-bank devices",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return util.InitLog(logLevel, logFile)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, configFlag, "/etc/otad/config.json", "daemon configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, logLevelFlag, "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, logFileFlag, "console", "log file path, or 'console' for stderr")
	rootCmd.PersistentFlags().StringVar(&manifestURL, manifestURLFlag, "", "update manifest endpoint")
	rootCmd.PersistentFlags().StringVar(&currentVersion, currentVersionFlag, "", "running firmware version")
	rootCmd.PersistentFlags().IntVar(&checkInterval, checkIntervalFlag, -1, "periodic check interval in seconds, 0 to disable")
	rootCmd.PersistentFlags().BoolVar(&tlsVerify, tlsVerifyFlag, false, "verify TLS certificates on https fetches")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(forceUpdateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(markValidCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearRecordCmd)
}

// processRestarter hands control back to the supervisor, which restarts
// the process on the freshly selected bank.
type processRestarter struct{}

func (processRestarter) Restart() {
	log.Infof("restarting to boot new image")
	os.Exit(0)
}
