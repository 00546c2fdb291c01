package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/markbook-app/markbook/internal/server"
	"github.com/markbook-app/markbook/internal/syncer"
	"github.com/markbook-app/markbook/internal/ui"
)

var (
	servePort   int
	serveStatic string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "data",
	Short:   "Run the gradebook server",
	Long: `Run the HTTP server: export endpoint, sync status WebSocket and
static UI files.

When signed in, a background loop syncs with the cloud every sync
interval, and the local database is watched so changes written by another
process are picked up and merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		logger := log.New(&lumberjack.Logger{
			Filename:   s.cfg.LogPath(),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, "[serve] ", log.LstdFlags)

		s.ctrl = rebuildController(s, logger)
		s.saver = syncer.NewSaver(s.ctrl)

		srvCfg := server.DefaultConfig()
		srvCfg.Logger = logger
		if servePort != 0 {
			srvCfg.Port = servePort
		} else {
			srvCfg.Port = s.cfg.ServerPort
		}
		if serveStatic != "" {
			srvCfg.StaticDir = serveStatic
		} else {
			srvCfg.StaticDir = s.cfg.StaticDir
		}
		srv := server.New(s.store, nil, s.ctrl, srvCfg)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(gctx) })

		if s.remote != nil {
			g.Go(func() error {
				err := s.ctrl.Run(gctx)
				if gctx.Err() != nil {
					return nil
				}
				return err
			})
		}

		watcher, err := syncer.NewDataWatcher(s.cfg.DatabasePath(), 0, func() {
			reloadStore(gctx, s, logger)
		}, logger)
		if err != nil {
			logger.Printf("Warning: cannot watch data dir: %v", err)
		} else {
			g.Go(func() error {
				err := watcher.Run(gctx)
				if gctx.Err() != nil {
					return nil
				}
				return err
			})
		}

		fmt.Printf("%s Serving on port %d (log: %s)\n", ui.RenderAccent("▶"), srvCfg.Port, s.cfg.LogPath())
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			return err
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

// rebuildController recreates the session controller with the server's
// rotating logger instead of the quiet one-shot logger.
func rebuildController(s *session, logger *log.Logger) *syncer.Controller {
	cfg := syncer.DefaultConfig()
	cfg.SyncInterval = s.cfg.SyncInterval
	cfg.DebounceInterval = s.cfg.Debounce
	cfg.Logger = logger
	if s.cfg.RemoteURL != "" {
		cfg.Probe = syncer.NewDialProbe(s.cfg.RemoteURL)
	}
	var rm syncer.Remote
	if s.remote != nil {
		rm = s.remote
	}
	return syncer.New(s.store, s.db, rm, s.cfg.UserID, cfg)
}

// reloadStore re-reads the local database after an external write and
// merges through the normal sync path when possible.
//
// The watcher also fires for this process's own saves (every sync cycle
// persists locally, which touches the watched file); those events must
// not start another reload-and-sync round, or the loop feeds itself.
func reloadStore(ctx context.Context, s *session, logger *log.Logger) {
	external, err := s.db.ExternallyModified(ctx)
	if err != nil {
		logger.Printf("Warning: reload check failed: %v", err)
		return
	}
	if !external {
		return
	}
	logger.Printf("External change to local database, reloading")
	snap, err := s.db.Load(ctx)
	if err != nil {
		logger.Printf("Warning: reload failed: %v", err)
		return
	}
	s.store.Replace(snap)
	if s.remote != nil {
		if err := s.ctrl.SyncWithCloud(ctx); err != nil {
			logger.Printf("Sync after reload: %v", err)
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "static UI directory")
	rootCmd.AddCommand(serveCmd)
}
