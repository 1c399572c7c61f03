package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nhle/task-cadence/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily materialization and serve metrics",
		Long: `Run the materializer every day at scheduler.daily_at (UTC) until
interrupted. When metrics.addr is set, Prometheus metrics are served on
/metrics and the last run on /status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(a.svc.Materializer(), a.logger)
			if _, err := sched.ScheduleDaily(a.cfg.Scheduler.DailyAt); err != nil {
				return fmt.Errorf("scheduler.daily_at: %w", err)
			}
			sched.Start()
			defer sched.Stop()
			a.logger.Info("daily materialization scheduled",
				"at", a.cfg.Scheduler.DailyAt,
				"next", sched.Next().Format(time.RFC3339),
			)

			if runNow {
				go sched.RunOnce(ctx)
			}

			errCh := make(chan error, 1)
			var srv *http.Server
			if addr := a.cfg.Metrics.Addr; addr != "" {
				srv = &http.Server{
					Addr:              addr,
					Handler:           newServeMux(sched),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.logger.Info("serving metrics", "addr", addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- fmt.Errorf("metrics server: %w", err)
					}
				}()
			}

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down")
			case err := <-errCh:
				return err
			}

			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("stopping metrics server: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "also materialize today immediately on start")
	return cmd
}

// statusResponse is the JSON body of /status.
type statusResponse struct {
	State     string    `json:"state"`
	LastRun   time.Time `json:"last_run,omitzero"`
	NextRun   time.Time `json:"next_run,omitzero"`
	Created   int       `json:"created"`
	Skipped   int       `json:"skipped"`
	Users     int       `json:"users"`
	Failures  int       `json:"template_failures"`
	LastError string    `json:"last_error,omitempty"`
}

func newServeMux(sched *scheduler.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st := sched.Status()
		resp := statusResponse{
			State:    st.State.String(),
			LastRun:  st.LastRun,
			NextRun:  sched.Next(),
			Created:  st.LastReport.Created,
			Skipped:  st.LastReport.Skipped,
			Users:    st.LastReport.UsersProcessed,
			Failures: len(st.LastReport.Errors),
		}
		if st.Error != nil {
			resp.LastError = st.Error.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		if st.State == scheduler.Failed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}
