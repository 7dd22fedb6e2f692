package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"appsync/config"
	"appsync/config/database"
	appdataRepo "appsync/internal/appdata/repository"
	dataService "appsync/internal/appdata/service"
	syncService "appsync/internal/sync/service"
	userRepo "appsync/internal/user/repository"
	userService "appsync/internal/user/service"
	"appsync/pkg/logger"
	"appsync/pkg/ratelimit"
	"appsync/pkg/token"
	"appsync/router"
	"appsync/socket"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "appsync",
		Short:         "Multi-user record store with realtime sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			logger.InitWith(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			return nil
		},
	}

	cmd.AddCommand(newServeCommand(&cfg))
	cmd.AddCommand(newMigrateCommand(&cfg))
	cmd.AddCommand(newCleanupCommand(&cfg))
	return cmd
}

func newServeCommand(cfg **config.Config) *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if cmd.Flags().Changed("store") {
				c.Store = store
			}
			if err := c.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&store, "store", "postgres", "record store backend (postgres|memory)")
	return cmd
}

func newMigrateCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(cmd.Context(), (*cfg).DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Sugar.Info("Migrations applied")
			return nil
		},
	}
}

func newCleanupCommand(cfg **config.Config) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records created more than --days ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			db, err := database.Connect(cmd.Context(), (*cfg).DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := dataService.NewAppDataService(appdataRepo.NewPostgresRepository(db), nil)
			res, err := svc.CleanupOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records created before %s\n", res.DeletedCount, res.CutoffDate)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "retention period in days")
	return cmd
}

type stores struct {
	records appdataRepo.Store
	users   userRepo.Repository
	db      *sql.DB
}

func (s stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.Store == "memory" {
		logger.Sugar.Warn("Using in-memory store; data is lost on exit")
		records := appdataRepo.NewMemoryRepository()
		return stores{records: records, users: userRepo.NewMemoryRepository(records)}, nil
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return stores{}, err
	}
	return stores{
		records: appdataRepo.NewPostgresRepository(db),
		users:   userRepo.NewPostgresRepository(db),
		db:      db,
	}, nil
}

// app is the wired server: services, hub, limiter and HTTP handler.
type app struct {
	cfg     *config.Config
	hub     *socket.Hub
	data    *dataService.AppDataService
	limiter *ratelimit.Limiter
	handler http.Handler
}

func newApp(cfg *config.Config, st stores) *app {
	tokens := token.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	hub := socket.NewHub()

	users := userService.NewUserService(st.users, tokens)
	data := dataService.NewAppDataService(st.records, hub)
	syncer := syncService.NewSyncService(st.records, hub)
	syncer.BatchSize = cfg.SyncBatchSize
	syncer.LenientTimestamps = cfg.SyncLenientTimestamps

	a := &app{cfg: cfg, hub: hub, data: data}
	deps := router.Deps{
		Users:        users,
		Data:         data,
		Sync:         syncer,
		Hub:          hub,
		Tokens:       tokens,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	if cfg.RateLimitEnabled {
		a.limiter = ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
		deps.Limiter = a.limiter
	}
	a.handler = router.Setup(deps)
	return a
}

// run serves until ctx is done and then shuts everything down.
func (a *app) run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.hub.Run(ctx) })
	g.Go(func() error {
		logger.Sugar.Infof("Go Backend listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Sugar.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.Janitor(ctx)
			return nil
		})
	}
	if a.cfg.RetentionDays > 0 {
		g.Go(func() error {
			a.data.RetentionWorker(ctx, a.cfg.RetentionDays, a.cfg.RetentionInterval)
			return nil
		})
	}
	return g.Wait()
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return newApp(cfg, st).run(ctx)
}
