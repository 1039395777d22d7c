// Package server wires configuration, storage, services and transports into
// a runnable application.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/videotube/internal/filex"
	"github.com/dmitrijs2005/videotube/internal/logging"
	"github.com/dmitrijs2005/videotube/internal/server/auth"
	"github.com/dmitrijs2005/videotube/internal/server/config"
	"github.com/dmitrijs2005/videotube/internal/server/httpapi"
	"github.com/dmitrijs2005/videotube/internal/server/media"
	"github.com/dmitrijs2005/videotube/internal/server/metrics"
	"github.com/dmitrijs2005/videotube/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/videotube/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gs "github.com/dmitrijs2005/videotube/internal/server/grpc"
)

const (
	tokenIssuer      = "videotube"
	uploadStagingDir = "public/temp"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *httpapi.HTTPServer
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := waitForDB(ctx, db, logger, 500*time.Millisecond, 6); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
		Issuer:        tokenIssuer,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token issuer error: %w", err)
	}

	uploader, err := media.NewS3Uploader(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("media uploader error: %w", err)
	}

	staging, err := filex.EnsureDir(uploadStagingDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upload dir error: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hasher := auth.NewBcryptHasher(0)
	sessions := services.NewSessionService(rm.Users(db), issuer, hasher, metrics.NewMetrics(reg), logger, c.StoreTimeout)
	users := services.NewUserService(db, rm, hasher, uploader, logger, c.StoreTimeout)

	handler := httpapi.NewHandler(sessions, users, httpapi.NewCookieConfig(c), logger, staging)
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{
		CORSOrigin: c.CORSOrigin,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:      db.PingContext,
		Logger:     logger,
	})

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		httpServer: httpapi.NewHTTPServer(c.EndpointAddrHTTP, router, logger),
		grpcServer: gs.NewGRPCServer(c.EndpointAddrGRPC, logger, sessions),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP and gRPC until a signal arrives or either server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	run := func(name string, serve func(context.Context) error) {
		defer wg.Done()
		if err := serve(ctx); err != nil {
			app.logger.Error(ctx, "server stopped", "server", name, "error", err)
			cancelFunc()
		}
	}

	wg.Add(2)
	go run("http", app.httpServer.Run)
	go run("grpc", app.grpcServer.Run)
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
