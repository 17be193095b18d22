// Package cmd wires the command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anna-pye/myeventlane-v2-sub001/cmd/event"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/exportready"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/ledger"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/migrate"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/ratelimit"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/scan"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/version"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/waitlist"
	"github.com/anna-pye/myeventlane-v2-sub001/cmd/worker"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/conf"
)

// RootCommand creates and returns the root command. settings is filled
// from the configuration before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "myeventlane",
		Short:         "MyEventLane notification automation",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, settings, &configFile); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := version.Command()
	rootCmd.AddCommand(
		scan.Command(settings),
		worker.Command(settings),
		exportready.Command(settings),
		waitlist.Command(settings),
		event.Command(settings),
		ratelimit.Command(settings),
		ledger.Command(settings),
		migrate.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, configFile)
	}

	return rootCmd
}

// initialize loads the configuration into settings. Flags bound to viper
// take precedence over the file and the environment.
func initialize(settings *conf.Settings, configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	loaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *loaded

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, configFile *string) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
