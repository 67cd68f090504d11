package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamchat/internal/auth"
	"github.com/teamchat/internal/config"
	"github.com/teamchat/internal/fileserver"
	"github.com/teamchat/internal/handler"
	"github.com/teamchat/internal/janitor"
	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/middleware"
	"github.com/teamchat/internal/repository"
	"github.com/teamchat/internal/service"
	"github.com/teamchat/internal/startup"
	"github.com/teamchat/internal/storage"
	"github.com/teamchat/internal/storage/memory"
	"github.com/teamchat/internal/ws"
)

const connectWait = 60 * time.Second

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep all data in process memory (no PostgreSQL, no Redis)")
	flag.Parse()

	cfg := config.Load()
	if cfg.LogLevel != "" {
		logger.SetLevel(cfg.LogLevel)
	}
	logger.Info("starting API service")

	var store storage.Store
	if *inMemory {
		store = memory.NewStore()
		logger.Info("storage: in-memory")
	} else {
		var embeddedDB *embeddedpostgres.EmbeddedPostgres
		if *dev {
			pg := startup.DevEmbeddedPG()
			var err error
			embeddedDB, err = startup.StartEmbeddedPostgres(pg)
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				logger.Flush(2 * time.Second)
				os.Exit(1)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
			cfg.Database.URL = pg.URL()
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			logger.Errorf("parse db config: %v", err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		poolCfg.MinConns = 2

		pool := startup.ConnectDBWithRetry(poolCfg, connectWait, "")
		defer pool.Close()

		if err := startup.RunMigrations(pool); err != nil {
			logger.Errorf("migrations: %v", err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		if *migrate && !*dev {
			logger.Flush(2 * time.Second)
			return
		}
		store = repository.NewStore(pool)
		logger.Info("database connected, migrations applied")
	}

	var live storage.LiveStore
	if *inMemory {
		live = memory.New()
	} else {
		live = startup.OpenLiveStore(cfg.Redis.URL, connectWait, "")
	}
	defer live.Close()

	var (
		files   service.Files
		objects janitor.Objects
		local   *fileserver.Local
	)
	switch cfg.Upload.Backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		obj, err := fileserver.NewObjectStore(ctx, cfg.Upload.S3, cfg.Upload.URLTTL)
		cancel()
		if err != nil {
			logger.Errorf("object storage: %v", err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		files, objects = obj, obj
		logger.Infof("uploads: s3 bucket=%s endpoint=%s", cfg.Upload.S3.Bucket, cfg.Upload.S3.Endpoint)
	default:
		local = fileserver.NewLocal(cfg.Upload.Dir, cfg.Upload.MaxUploadSize, cfg.Upload.PublicBaseURL, cfg.Auth.JWTSecret, cfg.Upload.URLTTL)
		files, objects = local, local
		logger.Infof("uploads: local dir=%s", cfg.Upload.Dir)
	}

	svc := service.New(store, live, files, cfg.Cache.TTL)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	events, err := live.Subscribe(hubCtx)
	if err != nil {
		logger.Errorf("live subscribe: %v", err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
	hub := ws.NewHub(svc, cfg.MaxWSConnections, ws.Limits{
		SendBuffer:     cfg.WSSendBufferSize,
		WriteWait:      time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongWait:       time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
	})
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx, events)
	}()

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	var janitorWg sync.WaitGroup
	if j, err := janitor.New(objects, store, cfg.Janitor.Cron, cfg.Janitor.Grace); err != nil {
		logger.Errorf("janitor disabled: %v", err)
	} else {
		janitorWg.Add(1)
		go func() {
			defer janitorWg.Done()
			j.Run(janitorCtx)
		}()
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst)
	defer limiter.Stop()

	srv := &http.Server{
		Addr: cfg.ServerAddr,
		Handler: handler.NewRouter(handler.RouterDeps{
			Service:        svc,
			Verifier:       verifier,
			Hub:            hub,
			LocalFiles:     local,
			Limiter:        limiter,
			AllowedOrigins: cfg.AllowedOrigins(),
			AccessLog:      true,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	janitorCancel()
	janitorWg.Wait()
	logger.Info("janitor stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
	logger.Flush(2 * time.Second)
}
