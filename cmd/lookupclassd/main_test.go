package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

func TestLoadScenarios(t *testing.T) {
	dir := filepath.Join("..", "..", "pkg", "scenario", "testdata")

	fromDir, err := loadScenarios([]string{dir})
	if err != nil {
		t.Fatalf("loadScenarios(dir) failed: %v", err)
	}
	if len(fromDir) != 2 {
		t.Fatalf("got %d scenarios from %s, want 2", len(fromDir), dir)
	}

	single, err := loadScenarios([]string{filepath.Join(dir, "mac-race.yaml"), dir})
	if err != nil {
		t.Fatalf("loadScenarios(file, dir) failed: %v", err)
	}
	if len(single) != 3 {
		t.Errorf("got %d scenarios, want 3", len(single))
	}

	if _, err := loadScenarios([]string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("loadScenarios should fail for a missing file")
	}
}

func TestFlagOr(t *testing.T) {
	var poll time.Duration
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().DurationVar(&poll, "poll", 0, "")

	if got := flagOr(cmd, "poll", poll, 3*time.Second); got != 3*time.Second {
		t.Errorf("unset flag: got %v, want setting", got)
	}
	if err := cmd.Flags().Set("poll", "250ms"); err != nil {
		t.Fatal(err)
	}
	if got := flagOr(cmd, "poll", poll, 3*time.Second); got != 250*time.Millisecond {
		t.Errorf("set flag: got %v, want 250ms", got)
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "replay": false, "audit": false, "metrics": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

type countingValidator struct{ calls atomic.Int32 }

func (v *countingValidator) Validate() error {
	v.calls.Add(1)
	return errors.New("next hop index out of step")
}

func TestValidateLoopRunsOnTicks(t *testing.T) {
	v := &countingValidator{}
	clk := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- validateLoop(ctx, v, time.Second, clk) }()

	deadline := time.Now().Add(5 * time.Second)
	for v.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("got %d validations, want 3", v.calls.Load())
		}
		clk.Add(time.Second)
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("validateLoop returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("validateLoop did not stop after cancel")
	}
}
