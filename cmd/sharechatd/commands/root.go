// Package commands implements the sharechatd CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/wtask/sharechat/pkg/semver"
)

var (
	// Version - release tag injected at build time:
	//
	//	go build -ldflags "-X github.com/wtask/sharechat/cmd/sharechatd/commands.Version=v1.0.0"
	Version = "dev"

	// fallbackVersion - reported when Version is not a semantic version.
	fallbackVersion = semver.V{Minor: 1, PreRelease: "dev"}

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sharechatd",
	Short: "sharechat - TCP chat with file sharing",
	Long: `sharechat is a TCP chat server. Connected clients exchange text messages
broadcast to everyone and share files through the server.

Use "sharechatd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/sharechat/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// buildVersion - normalized binary version.
func buildVersion() string {
	return semver.MustParse(Version, fallbackVersion).String()
}
