package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	pb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/audit"
	"github.com/newtron-network/lookupclass/pkg/lookupclass"
	"github.com/newtron-network/lookupclass/pkg/sonic"
	"github.com/newtron-network/lookupclass/pkg/telemetry"
	"github.com/newtron-network/lookupclass/pkg/util"
	"github.com/newtron-network/lookupclass/pkg/version"
)

var (
	runRedisAddr   string
	runSSHHost     string
	runSSHUser     string
	runSSHPort     int
	runPoll        time.Duration
	runGNMIAddr    string
	runMetricsAddr string
	runAuditLog    string
	runValidate    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync a switch and publish classIDs",
	Long: `Run connects to the switch's redis, polls its tables, and writes the
classIDs computed for routes and MAC entries back to APPL_DB and STATE_DB.
ClassID changes are streamed over gNMI and counted in Prometheus metrics.

Stops cleanly on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, cmd)
	},
}

// flagOr returns the flag value if it was set on the command line, else the
// settings value.
func flagOr[T any](cmd *cobra.Command, name string, flag T, setting T) T {
	if cmd.Flags().Changed(name) {
		return flag
	}
	return setting
}

func connectOptions(cmd *cobra.Command) (sonic.ConnectOptions, error) {
	opts := sonic.ConnectOptions{
		Addr:    flagOr(cmd, "redis", runRedisAddr, userSettings.GetRedisAddr()),
		SSHHost: flagOr(cmd, "ssh-host", runSSHHost, userSettings.SSHHost),
		SSHUser: flagOr(cmd, "ssh-user", runSSHUser, userSettings.GetSSHUser()),
		SSHPort: flagOr(cmd, "ssh-port", runSSHPort, userSettings.GetSSHPort()),
	}
	if opts.SSHHost != "" {
		pw, err := sonic.ReadPassword(opts.SSHUser, opts.SSHHost)
		if err != nil {
			return opts, err
		}
		opts.SSHPass = pw
	}
	return opts, nil
}

func runDaemon(ctx context.Context, cmd *cobra.Command) error {
	log := util.WithFields(version.Fields())

	opts, err := connectOptions(cmd)
	if err != nil {
		return err
	}
	client, err := sonic.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	writer := sonic.NewWriter(ctx, client)
	a := agent.New(lookupclass.NewRouteUpdater(), writer)
	gnmiServer := telemetry.New(a)
	a.Register(gnmiServer)

	if path := flagOr(cmd, "audit-log", runAuditLog, userSettings.AuditLog); path != "" {
		logger, err := audit.NewFileLogger(path, audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()
		a.Register(audit.NewJournal(logger))
	}

	gnmiAddr := flagOr(cmd, "gnmi", runGNMIAddr, userSettings.GetGNMIAddr())
	lis, err := net.Listen("tcp", gnmiAddr)
	if err != nil {
		return fmt.Errorf("gNMI listener: %w", err)
	}
	grpcServer := grpc.NewServer()
	pb.RegisterGNMIServer(grpcServer, gnmiServer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{
		Addr:              flagOr(cmd, "metrics", runMetricsAddr, userSettings.GetMetricsAddr()),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	poll := flagOr(cmd, "poll", runPoll, userSettings.GetPollInterval())
	clk := clock.New()
	syncer := sonic.NewSyncer(client, a, poll, clk)
	syncer.AddReconciler(writer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(gctx) })
	g.Go(func() error {
		log.WithField("addr", lis.Addr().String()).Info("Serving gNMI")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.WithField("addr", httpServer.Addr).Info("Serving metrics")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if runValidate {
		g.Go(func() error { return validateLoop(gctx, a, poll, clk) })
	}
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.WithField("generation", a.State().Generation()).Info("Stopped")
	return err
}

type validator interface {
	Validate() error
}

// validateLoop cross-checks the engine's caches against the published state
// every interval. Violations are logged, not fatal.
func validateLoop(ctx context.Context, v validator, interval time.Duration, clk clock.Clock) error {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := v.Validate(); err != nil {
				util.WithOperation("validate").Error(err)
			}
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runRedisAddr, "redis", "", "Redis address when not tunneling")
	runCmd.Flags().StringVar(&runSSHHost, "ssh-host", "", "Tunnel redis through SSH to this host")
	runCmd.Flags().StringVar(&runSSHUser, "ssh-user", "", "SSH user")
	runCmd.Flags().IntVar(&runSSHPort, "ssh-port", 0, "SSH port")
	runCmd.Flags().DurationVar(&runPoll, "poll", 0, "Poll interval")
	runCmd.Flags().StringVar(&runGNMIAddr, "gnmi", "", "gNMI listen address")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "Prometheus listen address")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "Record classID changes to this file")
	runCmd.Flags().BoolVar(&runValidate, "validate", false, "Periodically check engine invariants")
}
