// Package cmd provides the command-line interface for jiradigest.
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
)

const appName = "jiradigest"

var (
	cfgFile string
	logDir  string

	// cfg is loaded once per invocation by the root command's pre-run hook.
	cfg     *config.Config
	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Jiradigest mirrors your Jira tickets locally and mails a weekly digest",
	Long: `Jiradigest keeps a local SQLite copy of the Jira tickets assigned to you and
sends a weekly status digest of your open-sprint work by email.

Settings are read from a config file (--config, or config.json/yaml/toml in the
working directory), a .env file and JIRADIGEST_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		dir := logDir
		if dir == "" {
			dir = cfg.LogDir
		}
		if dir != "" {
			closer, err := logging.SetupFileLogger(dir, appName)
			if err != nil {
				return err
			}
			logFile = closer
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a config file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for dated log files (overrides LogDir)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
}
