package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/obs"
	"main/internal/sched"
	"main/internal/schema"
	"main/pkg/exception"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session and reconciliation daemon",
	Long: `Run starts the full engine: broker session management, the expiry
countdown, scheduled health probes and position reconciliation, and the
metrics listener. Startup recovery completes before periodic work begins.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	stopProfiler, err := obs.StartProfiler("engine", c.cfg.Profiling.ServerAddress, c.cfg.Profiling.Tags)
	if err != nil {
		logs.Warnf("start profiler, err: %+v", err)
	}
	if stopProfiler != nil {
		defer stopProfiler()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(ctx, c)
	}()

	if err := c.auth.EnsureSession(ctx); err != nil {
		if !stderrors.Is(err, exception.ErrAutoLoginDisabled) {
			return errors.Wrap(err, "establish session")
		}
		logs.Warn("running degraded until an operator provides a session")
	}

	result := c.recovery.Run(ctx)
	if !result.Success {
		logs.Errorf("recovery completed with failures: %s", result.Err)
	}

	scheduler, err := buildScheduler(c)
	if err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	srv := startMetricsListener(c)

	<-sys.Shutdown()
	logs.Info("shutdown signal received")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("stop metrics listener, err: %+v", err)
	}
	wg.Wait()
	logs.Info("engine stopped")
	return nil
}

// consumeEvents drains the lifecycle queue. Expiry drives re-login and a
// successful reconnect rolls the trading day, resumes automation, and
// re-verifies positions.
func consumeEvents(ctx context.Context, c *core) {
	c.queue.Run(ctx, func(e schema.Event) {
		logs.Infof("event %s, reason: %s", e.Type, e.Reason)
		switch e.Type {
		case schema.EventSessionExpired:
			if !c.cfg.Auth.AutoLogin {
				return
			}
			if err := c.auth.Reauthenticate(ctx, "session expired: "+e.Reason); err != nil {
				logs.Errorf("re-authentication failed, err: %+v", err)
			}
		case schema.EventSessionReconnected:
			if err := c.risk.Rollover(ctx, time.Now()); err != nil {
				logs.Errorf("trading day rollover, err: %+v", err)
			}
			c.risk.ResumeAutomation()
			go func() {
				if _, err := c.reconciler.Reconcile(ctx, schema.TriggerReconnect); err != nil {
					logs.Errorf("reconnect reconciliation, err: %+v", err)
				}
			}()
		}
	})
}

func buildScheduler(c *core) (*sched.Scheduler, error) {
	scheduler := sched.New(0)
	tasks := []sched.Task{
		{
			Name:  "session-probe",
			Every: c.cfg.Probe.Interval,
			Run: func(ctx context.Context) error {
				c.health.CheckHealth(ctx)
				return nil
			},
		},
		{
			Name:  "expiry-countdown",
			Every: c.cfg.Expiry.CheckInterval,
			Run: func(ctx context.Context) error {
				c.expiry.CheckExpiry(ctx)
				return nil
			},
		},
		{
			Name:  "position-reconcile",
			Every: c.cfg.Reconcile.Interval,
			Gate:  c.cfg.Reconcile.WithinMarketHours,
			Run: func(ctx context.Context) error {
				if !c.health.IsSessionActive() {
					return nil
				}
				_, err := c.reconciler.Reconcile(ctx, schema.TriggerScheduled)
				return err
			},
		},
	}
	for _, task := range tasks {
		if err := scheduler.Add(task); err != nil {
			return nil, errors.Wrapf(err, "schedule %s", task.Name)
		}
	}
	return scheduler, nil
}

func startMetricsListener(c *core) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "state=%s degradation=%s\n", c.health.State(), c.guard.DegradationLevel())
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: c.cfg.Metrics.Addr, Handler: mux}
	go func() {
		logs.Infof("metrics listening on %s", c.cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics listener, err: %+v", err)
		}
	}()
	return srv
}
