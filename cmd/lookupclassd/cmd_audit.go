package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/lookupclass/pkg/audit"
	"github.com/newtron-network/lookupclass/pkg/cli"
	"github.com/newtron-network/lookupclass/pkg/state"
)

var (
	auditPath  string
	auditKind  string
	auditKey   string
	auditClass string
	auditLast  string
	auditLimit int
	auditSet   bool
	auditClear bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the classID journal",
	Long: `Audit lists the route and MAC classID changes recorded by
'lookupclassd run --audit-log'.

Examples:
  lookupclassd audit --kind route --last 1h
  lookupclassd audit --key Vrf2:20.0.1.0/24
  lookupclassd audit --class 10 --clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagOr(cmd, "file", auditPath, userSettings.AuditLog)
		if path == "" {
			return fmt.Errorf("no audit log: set audit_log in settings or pass --file")
		}

		classID, err := state.ParseClassID(auditClass)
		if err != nil {
			return err
		}
		filter := audit.Filter{
			Kind:      audit.Kind(auditKind),
			Key:       auditKey,
			ClassID:   classID,
			Limit:     auditLimit,
			SetOnly:   auditSet,
			ClearOnly: auditClear,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-d)
		}

		logger, err := audit.NewFileLogger(path, audit.RotationConfig{})
		if err != nil {
			return err
		}
		defer logger.Close()
		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}
		t := cli.NewTable("TIMESTAMP", "GEN", "KIND", "KEY", "CHANGE", "CLASS")
		for _, e := range events {
			t.Row(e.Timestamp.Format("2006-01-02 15:04:05"), strconv.FormatUint(e.Generation, 10),
				string(e.Kind), e.Key, e.Change, classTransition(e))
		}
		t.Flush()
		return nil
	},
}

func classTransition(e *audit.Event) string {
	s := e.OldClassID.String() + " -> " + e.NewClassID.String()
	if e.NewClassID.Valid() {
		return cli.Green(s)
	}
	return cli.Yellow(s)
}

func init() {
	auditCmd.Flags().StringVar(&auditPath, "file", "", "Audit log file (default from settings)")
	auditCmd.Flags().StringVar(&auditKind, "kind", "", "Filter by kind (route or mac)")
	auditCmd.Flags().StringVar(&auditKey, "key", "", "Filter by route ([VrfN:]prefix) or MAC (VlanN|mac)")
	auditCmd.Flags().StringVar(&auditClass, "class", "", "Filter by old or new classID")
	auditCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 30m, 24h)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditCmd.Flags().BoolVar(&auditSet, "set", false, "Only changes that leave a classID")
	auditCmd.Flags().BoolVar(&auditClear, "clear", false, "Only changes that remove a classID")
	auditCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON")
}
