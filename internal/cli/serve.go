package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tidewatch/tidewatch/internal/api"
	"github.com/tidewatch/tidewatch/internal/auth"
	"github.com/tidewatch/tidewatch/internal/config"
	"github.com/tidewatch/tidewatch/internal/configstore"
	"github.com/tidewatch/tidewatch/internal/ingest"
	"github.com/tidewatch/tidewatch/internal/meta"
	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/internal/outbound"
	"github.com/tidewatch/tidewatch/internal/store"
	"github.com/tidewatch/tidewatch/internal/subscription"
	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/internal/ws"
	"github.com/tidewatch/tidewatch/internal/zones"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// ServeCmd runs the host: REST API, WebSocket stream and /metrics.
func ServeCmd() *cobra.Command {
	var configPath, uiDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the data core HTTP host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := new(slog.LevelVar)
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout,
				&slog.HandlerOptions{Level: level})))

			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			level.Set(cfg.Server.SlogLevel())

			slog.Info("tidewatch starting",
				"config", configPath,
				"http_port", cfg.Server.HTTPPort,
				"auth_mode", cfg.Server.Auth.Mode,
				"store", cfg.Server.Store.Backend,
			)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv, err := buildServer(ctx, cfg, level)
			if err != nil {
				return err
			}
			defer srv.Close()

			if configPath != "" {
				go func() {
					if err := config.Watch(ctx, configPath, srv.Reload); err != nil {
						slog.Error("tidewatch: config watch stopped", "err", err)
					}
				}()
			}

			handler := srv.Handler()
			if uiDir != "" {
				handler = withUI(handler, uiDir)
				slog.Info("serving UI static files", "dir", uiDir)
			}

			httpSrv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			slog.Info("tidewatch shutting down")
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutCancel()
			return httpSrv.Shutdown(shutCtx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the host config file; empty uses built-in defaults")
	cmd.Flags().StringVar(&uiDir, "ui-dir", "", "Serve static UI files from this directory (e.g. ui/dist)")
	return cmd
}

// server is the wired set of core components behind one HTTP handler.
type server struct {
	level *slog.LevelVar

	configs configstore.Store
	units   *units.Engine
	reg     *meta.Registry
	eval    *zones.Engine
	hub     *ws.Hub
	mux     *http.ServeMux
}

// buildServer opens the configuration store and wires every component.
// Background loops (stats ticks, hub fan-out, store watch) stop with ctx.
func buildServer(ctx context.Context, cfg *config.Config, level *slog.LevelVar) (*server, error) {
	s := cfg.Server

	cs, err := configstore.Open(s.Store.Backend, s.Store.Path)
	if err != nil {
		return nil, err
	}

	ue := units.New()
	stored, err := cs.LoadUnitDefaults()
	switch {
	case errors.Is(err, configstore.ErrNotFound):
	case err != nil:
		cs.Close()
		return nil, err
	default:
		if err := ue.SetDefaults(stored); err != nil {
			slog.Warn("tidewatch: stored unit defaults partly rejected", "err", err)
		}
	}
	if len(s.Units) > 0 {
		if err := ue.SetDefaults(s.Units); err != nil {
			slog.Warn("tidewatch: configured unit defaults partly rejected", "err", err)
		}
	}

	var pub meta.Publisher = outbound.Discard{}
	if s.Outbound.Endpoint != "" {
		pub = outbound.New(s.Outbound)
		slog.Info("tidewatch: publishing edits", "endpoint", s.Outbound.Endpoint)
	}

	center := notify.New()
	st := store.New(store.WithSelfPrefix(s.SelfPrefix))
	reg, err := meta.New(cs, pub,
		meta.WithNotifier(center),
		meta.WithSelfPrefix(s.SelfPrefix),
		meta.WithPublishTimeout(s.Outbound.Timeout),
	)
	if err != nil {
		cs.Close()
		return nil, err
	}

	eval := zones.New(s.Alerts, reg, zones.WithNotifier(center))
	mux := subscription.New(st)

	opts := []ingest.Option{ingest.WithEvaluator(eval)}
	var stats *ingest.Stats
	if s.Stats.Enabled {
		stats = ingest.NewStats()
		opts = append(opts, ingest.WithStats(stats))
		go stats.Run(ctx)
	}
	co := ingest.New(st, reg, mux, opts...)
	co.OnDiscover(func(path string, vt types.ValueType) {
		slog.Debug("tidewatch: path discovered", "path", path, "type", vt)
	})

	hub := ws.New(mux, ws.WithSeverity(eval), ws.WithNotifications(center))
	go hub.Run(ctx)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stats != nil {
		promReg.MustRegister(stats)
	}

	apiHandler := api.New(api.Deps{
		Store:     st,
		Meta:      reg,
		Zones:     eval,
		Ingest:    co,
		Stats:     stats,
		Units:     ue,
		Notify:    center,
		UnitStore: cs,
		Auth:      auth.APIKey(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key()),
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws", hub)
	httpMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	if fs, ok := cs.(*configstore.FileStore); ok {
		go func() {
			err := fs.Watch(ctx, func() {
				if err := reg.LoadZones(); err != nil {
					slog.Error("tidewatch: zone reload failed", "err", err)
				}
			})
			if err != nil {
				slog.Error("tidewatch: store watch stopped", "err", err)
			}
		}()
	}

	return &server{
		level:   level,
		configs: cs,
		units:   ue,
		reg:     reg,
		eval:    eval,
		hub:     hub,
		mux:     httpMux,
	}, nil
}

// Handler returns the combined HTTP handler.
func (s *server) Handler() http.Handler { return s.mux }

// Reload applies the hot-reloadable parts of a new config: log level, unit
// defaults and alert delivery. Port, store and auth changes need a restart.
func (s *server) Reload(cfg *config.Config) {
	if s.level != nil {
		s.level.Set(cfg.Server.SlogLevel())
	}
	if len(cfg.Server.Units) > 0 {
		if err := s.units.SetDefaults(cfg.Server.Units); err != nil {
			slog.Warn("tidewatch: reloaded unit defaults partly rejected", "err", err)
		}
	}
	s.eval.Configure(cfg.Server.Alerts)
}

// Close waits for in-flight publishes and webhooks, then closes the store.
func (s *server) Close() error {
	s.reg.Wait()
	s.eval.Wait()
	return s.configs.Close()
}

// withUI serves static files from dir, falling back to index.html for any
// unknown path so client-side routing works.
func withUI(next http.Handler, dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	mux := http.NewServeMux()
	mux.Handle("/api/", next)
	mux.Handle("/ws", next)
	mux.Handle("/metrics", next)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
	return mux
}
