package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/ai"
	"github.com/nhle/mail-triage/internal/app"
	appsync "github.com/nhle/mail-triage/internal/sync"
)

// syncCmd runs one forced pass in the foreground.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			a.Scheduler.RequestSync(true)
			a.Scheduler.Wait()

			st := a.Scheduler.Status()
			printStatus(st)
			return st.LastError
		})
	},
}

// serveCmd syncs on the configured interval, analyzes new mail and serves
// Prometheus metrics until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync in the background and serve /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(a *app.App) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:              a.Config.Metrics.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.Logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			a.Logger.Info("serving",
				zap.String("account", a.Account.Address),
				zap.String("metrics_addr", a.Config.Metrics.Addr),
				zap.Duration("interval", a.Config.Sync.Interval()),
			)

			a.Scheduler.Start(ctx)
			if a.Classifier.Enabled() {
				go analyzeLoop(ctx, a)
			}

			<-ctx.Done()
			a.Logger.Info("shutting down")
			a.Scheduler.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	},
}

// analyzeCmd classifies one batch of unsummarized messages.
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize and classify pending messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			n, err := a.Analyzer.AnalyzePending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Analyzed %d message(s).\n", n)
			return nil
		})
	},
}

func analyzeLoop(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(a.Config.Sync.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Analyzer.AnalyzePending(ctx); err != nil {
				if errors.Is(err, ai.ErrNoAPIKey) || errors.Is(err, context.Canceled) {
					return
				}
				a.Logger.Warn("analysis run failed", zap.Error(err))
			}
		}
	}
}

func printStatus(st appsync.Status) {
	fmt.Printf("Run:        %s\n", st.RunID)
	fmt.Printf("Attempted:  %s\n", formatTime(st.LastAttempted))
	fmt.Printf("Successful: %s\n", formatTime(st.LastSuccessful))
	if st.AuthRequired {
		fmt.Println("Auth:       required, run `mailtriage auth`")
	}
	if st.LastError != nil {
		retry := ""
		if st.Retriable {
			retry = " (temporary, will retry)"
		}
		fmt.Printf("Error:      %v%s\n", st.LastError, retry)
		return
	}
	r := st.LastResult
	fmt.Printf("Fetched %d messages and %d drafts: %d inserted, %d updated, %d unchanged, %d ignored, %d skipped\n",
		r.Fetched, r.Drafts, r.Inserted, r.Updated, r.Unchanged, r.Ignored, r.Skipped)
	if r.WriteFailures > 0 {
		fmt.Printf("Warning:    %d local writes failed, see the log\n", r.WriteFailures)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
