package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/audit"
	"github.com/newtron-network/lookupclass/pkg/cli"
	"github.com/newtron-network/lookupclass/pkg/scenario"
)

var (
	replayContinue bool
	replaySteps    bool
	replayAuditLog string
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml|dir>...",
	Short: "Replay scenario files against an in-memory agent",
	Long: `Replay runs each scenario against a fresh agent with no switch attached
and checks its expectations. Directories are expanded to the *.yaml files
they contain.

Examples:
  lookupclassd replay pkg/scenario/testdata/
  lookupclassd replay --steps route-fallback.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios, err := loadScenarios(args)
		if err != nil {
			return err
		}

		var observers []agent.StateObserver
		if replayAuditLog != "" {
			logger, err := audit.NewFileLogger(replayAuditLog, audit.RotationConfig{})
			if err != nil {
				return fmt.Errorf("opening audit log: %w", err)
			}
			defer logger.Close()
			observers = append(observers, audit.NewJournal(logger))
		}

		runner := scenario.NewRunner(observers...)
		runner.ContinueOnFailure = replayContinue
		results := runner.Run(cmd.Context(), scenarios)

		if jsonOutput {
			if err := json.NewEncoder(os.Stdout).Encode(results); err != nil {
				return err
			}
		} else {
			printResults(results)
		}

		for _, r := range results {
			if r.Status != scenario.StepStatusPassed {
				return errScenarioFailure
			}
		}
		return nil
	},
}

func loadScenarios(args []string) ([]*scenario.Scenario, error) {
	var scenarios []*scenario.Scenario
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dir, err := scenario.ParseAllScenarios(arg)
			if err != nil {
				return nil, err
			}
			scenarios = append(scenarios, dir...)
			continue
		}
		sc, err := scenario.ParseScenario(arg)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func printResults(results []*scenario.ScenarioResult) {
	t := cli.NewTable("SCENARIO", "STATUS", "STEPS", "GENERATION", "DURATION")
	for _, r := range results {
		t.Row(r.Name, cli.Status(string(r.Status)), strconv.Itoa(len(r.Steps)),
			strconv.FormatUint(r.Generation, 10), r.Duration.Round(time.Microsecond).String())
	}
	t.Flush()

	for _, r := range results {
		if !replaySteps && r.Status == scenario.StepStatusPassed {
			continue
		}
		fmt.Println()
		fmt.Println(cli.Bold(r.Name))
		for _, s := range r.Steps {
			line := cli.DotPad(fmt.Sprintf("  %2d %s", s.Index+1, s.Name), 48) + " " + cli.Status(string(s.Status))
			if s.Message != "" {
				line += "  " + cli.Dim(s.Message)
			}
			fmt.Println(line)
		}
	}
}

func init() {
	replayCmd.Flags().BoolVar(&replayContinue, "continue-on-failure", false, "Keep running steps after a failed expectation")
	replayCmd.Flags().BoolVar(&replaySteps, "steps", false, "Print every step, not only those of failed scenarios")
	replayCmd.Flags().StringVar(&replayAuditLog, "audit-log", "", "Record classID changes to this file")
	replayCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}
