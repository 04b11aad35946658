package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/log"
)

var serveFlags struct {
	watch bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve browsers over the socket transport",
	Long: `Serves pages to real browsers. Each browser that opens the root URL
gets its own session, attached to a WebView that injects the bridge and
the configured auto-load files after every load. Metrics are exposed at
/metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", false, "re-inject auto-load files when they change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.WithComponent("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := openResources(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	var (
		mu    sync.Mutex
		views []*webbridge.WebView
		wg    sync.WaitGroup
	)
	srv := webbridge.NewSocketServer(webbridge.SocketOptions{
		Resources:   reg,
		EvalTimeout: cfg.EvalTimeout,
		OnSession: func(sess *webbridge.Session) {
			w := webbridge.AttachSession(sess, bridgeConfig(cfg), webbridge.WithResources(reg))
			applyAutoLoad(w, cfg)
			w.On(webbridge.EventLoadFinished, func(ev *webbridge.Event) {
				e := logger.Info()
				if ev.Err != nil {
					e = logger.Warn().Err(ev.Err)
				}
				e.Str(log.FieldEvent, "session.load_finished").Str(log.FieldSessionID, sess.ID()).Str(log.FieldURL, ev.URL).Msg("page loaded")
			})
			mu.Lock()
			views = append(views, w)
			mu.Unlock()
			if serveFlags.watch {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := w.WatchAutoLoadFiles(ctx); err != nil {
						logger.Error().Err(err).Str(log.FieldSessionID, sess.ID()).Msg("cannot watch auto-load files")
					}
				}()
			}
		},
	})
	srv.Router().Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str(log.FieldEvent, "serve.listening").Str("addr", cfg.Listen).Msg("serving browsers")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
	stop()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, w := range views {
		_ = w.Close()
	}
	logger.Info().Str(log.FieldEvent, "serve.stopped").Int("sessions", len(views)).Msg("stopped")
	return nil
}
