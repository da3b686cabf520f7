// Lookupclassd - SONiC lookup-class agent
//
// Keeps a versioned copy of a switch's ports, VLANs, neighbors, routes and
// learned MACs, and assigns each route the classID of one of its next hops
// so that traffic toward classified hosts can be matched by ACLs.
//
// Examples:
//
//	lookupclassd run                                    # sync the local switch
//	lookupclassd run --ssh-host leaf1 --poll 500ms      # through an SSH tunnel
//	lookupclassd replay scenarios/                      # replay scenario files
//	lookupclassd audit --kind route --last 1h           # classID journal
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/lookupclass/pkg/settings"
	"github.com/newtron-network/lookupclass/pkg/util"
	"github.com/newtron-network/lookupclass/pkg/version"
)

var (
	settingsPath string
	logLevel     string
	jsonLogs     bool
	jsonOutput   bool

	userSettings *settings.Settings
)

// errScenarioFailure is returned by replay when a scenario did not pass, so
// main can exit non-zero without printing a second error.
var errScenarioFailure = errors.New("scenario failure")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errScenarioFailure) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "lookupclassd",
	Short:             "SONiC lookup-class agent",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Lookupclassd propagates neighbor classIDs to the routes that resolve
through them, and keeps MAC entry classIDs in step with hardware learning.

Settings are read from ~/.lookupclass/settings.json (or --settings);
command-line flags override them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if settingsPath != "" {
			userSettings, err = settings.LoadFrom(settingsPath)
		} else {
			userSettings, err = settings.Load()
		}
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		level := logLevel
		if level == "" {
			level = userSettings.GetLogLevel()
		}
		if err := util.SetLogLevel(level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		if jsonLogs {
			util.SetJSONFormat()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("lookupclassd dev build (version not set at link time)")
		} else {
			fmt.Printf("lookupclassd %s\n", version.Info())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default ~/.lookupclass/settings.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Log in JSON format")

	rootCmd.AddCommand(runCmd, replayCmd, auditCmd, metricsCmd, versionCmd)
}
