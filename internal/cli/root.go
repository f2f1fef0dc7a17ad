package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "reachy-remix",
	Short: "Browser-based motion builder for the Reachy Mini robot",
	Long: `Reachy Remix serves a web page for recording, saving and replaying
moves on a Reachy Mini. It runs hosted by a launcher (run) or standalone
(demo), falling back to a simulated demo when no robot is connected.`,
	SilenceUsage: true,
}

// baseDir is the directory holding .reachy-remix/. Empty means the
// working directory.
var baseDir string

// logLevel overrides log.level from the config file.
var logLevel string

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("reachy-remix version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "directory containing .reachy-remix/ (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
