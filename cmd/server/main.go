package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-gate/gateway"
	"github.com/jrsteele09/go-tenant-gate/internal/config"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	licenserepofakes "github.com/jrsteele09/go-tenant-gate/licenses/repofakes"
	"github.com/jrsteele09/go-tenant-gate/pool"
	"github.com/jrsteele09/go-tenant-gate/server"
	"github.com/jrsteele09/go-tenant-gate/sessions"
	"github.com/jrsteele09/go-tenant-gate/stats"
	"github.com/jrsteele09/go-tenant-gate/storage/postgres"
	"github.com/jrsteele09/go-tenant-gate/tenants"
	tenantrepofakes "github.com/jrsteele09/go-tenant-gate/tenants/repofakes"
)

func main() {
	if err := config.CheckSecrets(config.New()); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogger(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := wire(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	handler, err := server.New(c, app.gateway)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	go app.pool.Run(ctx, c.GetPoolSweepInterval())
	go app.licenses.Run(ctx, c.GetLicenseSweepInterval())

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	cancel()
	return shutdown(srv)
}

// application holds the wired components and what must be closed on exit.
type application struct {
	gateway  *gateway.Gateway
	pool     *pool.Manager
	licenses *licenses.Service
	closers  []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func wire(ctx context.Context, c config.Config) (*application, error) {
	app := &application{}

	var (
		tenantRepo  tenants.Repo
		planRepo    licenses.PlanRepo
		licenseRepo licenses.Repo
	)
	if url := c.GetRegistryDatabaseURL(); url != "" {
		db, err := postgres.Connect(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("postgres.Connect: %w", err)
		}
		app.closers = append(app.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			app.close()
			return nil, fmt.Errorf("postgres.Migrate: %w", err)
		}
		tenantRepo, planRepo, licenseRepo = postgresRepos(db)
		log.Info().Msg("registry backed by postgres")
	} else {
		tenantRepo = tenantrepofakes.NewFakeTenantRepo()
		planRepo = licenserepofakes.NewFakePlanRepo()
		licenseRepo = licenserepofakes.NewFakeLicenseRepo()
		log.Warn().Msg("REGISTRY_DATABASE_URL is not set, registry is in memory")
	}

	registry, err := tenants.NewRegistry(tenantRepo)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("tenants.NewRegistry: %w", err)
	}

	app.licenses, err = licenses.NewService(licenseRepo, planRepo, licenses.WithDefaults(c.GetDefaultTrialDays(), c.GetDefaultGracePeriodDays()))
	if err != nil {
		app.close()
		return nil, fmt.Errorf("licenses.NewService: %w", err)
	}
	catalog, err := config.LoadPlanCatalog(c.GetPlansFile())
	if err != nil {
		app.close()
		return nil, err
	}
	seeded, err := app.licenses.SeedPlans(ctx, catalog)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("seed plans: %w", err)
	}
	log.Info().Int("plans", len(seeded)).Str("file", c.GetPlansFile()).Msg("plan catalog loaded")

	app.pool = pool.NewManager(
		pool.DriverConnector{
			tenants.DriverPostgres: &pool.PgxConnector{MaxConns: c.GetPoolMaxConns()},
			tenants.DriverMySQL:    &pool.GormConnector{MaxConns: int(c.GetPoolMaxConns())},
		},
		pool.WithIdleTimeout(c.GetPoolIdleTimeout()),
		pool.WithConnectRetry(c.GetPoolConnectAttempts(), c.GetPoolConnectBackoff()),
	)
	app.closers = append(app.closers, func() {
		if err := app.pool.Close(); err != nil {
			log.Warn().Err(err).Msg("closing tenant handles")
		}
	})

	counter, err := sessionCounter(ctx, c, app)
	if err != nil {
		app.close()
		return nil, err
	}
	controller, err := sessions.NewController(counter, c.GetSessionTokenSecret(), sessions.WithIssuer(c.GetSessionIssuer()))
	if err != nil {
		app.close()
		return nil, fmt.Errorf("sessions.NewController: %w", err)
	}

	app.gateway, err = gateway.New(registry, app.pool, app.licenses, controller,
		gateway.WithStatsOptions(
			stats.WithTenantTimeout(c.GetStatsTenantTimeout()),
			stats.WithExpiringWindow(c.GetStatsExpiringWindow()),
			stats.WithMaxConcurrency(c.GetStatsMaxConcurrency()),
			stats.WithNearLimitRatio(c.GetNearLimitRatio()),
		),
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("gateway.New: %w", err)
	}
	return app, nil
}

func postgresRepos(db *pgxpool.Pool) (tenants.Repo, licenses.PlanRepo, licenses.Repo) {
	return postgres.NewTenantRepo(db), postgres.NewPlanRepo(db), postgres.NewLicenseRepo(db)
}

// sessionCounter shares live session counts through Redis when REDIS_ADDR is
// set. Without it counts are per process.
func sessionCounter(ctx context.Context, c config.Config, app *application) (sessions.Counter, error) {
	addr := c.GetRedisAddr()
	if addr == "" {
		log.Warn().Msg("REDIS_ADDR is not set, session counts are local to this process")
		return sessions.NewMemoryCounter(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	app.closers = append(app.closers, func() { _ = rdb.Close() })
	return sessions.NewRedisCounter(rdb, "tenant-gate"), nil
}

func setupLogger(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
