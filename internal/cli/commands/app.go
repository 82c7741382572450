package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cache"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cli/config"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cli/ui"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/logging"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/hooks"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/metadata"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/model"
)

type globalOptions struct {
	configPath string
	noColor    bool
	verbose    bool
}

// openDatabase is replaced in tests
var openDatabase = func(url string) (*sql.DB, error) {
	return sql.Open("pgx", url)
}

// app holds the collaborators shared by one command invocation
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	resolver *metadata.Resolver
	verbose  bool
	closers  []func() error
}

func newApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), newPrinter(cmd.ErrOrStderr(), opts).ConfigFailure(err.Error()))
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Development: cfg.Log.Development})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, verbose: opts.verbose}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	resolverOpts := []metadata.Option{metadata.WithLogger(logger)}
	shared, err := a.openCache(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	if shared != nil {
		resolverOpts = append(resolverOpts, metadata.WithCache(shared))
	}
	a.resolver = metadata.NewResolver(metadata.NewFileSource(cfg.Metadata.Dir), resolverOpts...)

	return a, nil
}

func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	base := cache.Config{DefaultTTL: a.cfg.Cache.TTL, Prefix: a.cfg.Cache.Prefix}

	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		return cache.NewMemoryCacheWithConfig(base), nil
	case config.CacheRedis:
		redisCache, err := cache.NewRedisCacheWithConfig(ctx, cache.RedisConfig{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
			Config:   base,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Cache.RedisAddr, err)
		}
		a.closers = append(a.closers, redisCache.Close)
		return redisCache, nil
	default:
		return nil, nil
	}
}

// openDB connects to the configured database and verifies the connection
func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url not set (set DATABASE_URL or database.url in gravitycar.yaml)")
	}

	db, err := openDatabase(a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %s", categorizeDatabaseError(err, a.verbose))
	}
	a.closers = append(a.closers, db.Close)
	return db, nil
}

// newService builds a model service whose asynchronous hooks run on a pool drained at close
func (a *app) newService(db *sql.DB, registry *hooks.Registry) *model.Service {
	queue := hooks.NewAsyncQueue(a.cfg.Hooks.Workers, a.cfg.Hooks.Buffer, a.logger)
	queue.Start()
	a.closers = append(a.closers, func() error {
		queue.Shutdown()
		return nil
	})
	executor := hooks.NewExecutor(registry, queue, a.logger)
	return model.NewService(db, a.resolver, model.WithLogger(a.logger), model.WithHooks(executor))
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func newPrinter(out io.Writer, opts *globalOptions) *ui.Printer {
	return ui.NewPrinter(out, opts.noColor || color.NoColor)
}

// categorizeDatabaseError returns a user-friendly error message based on the database error.
// In verbose mode the full error is returned.
func categorizeDatabaseError(err error, verbose bool) string {
	if verbose {
		return err.Error()
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "syntax"):
		return "SQL syntax error - use --verbose for details"
	case strings.Contains(errStr, "constraint") || strings.Contains(errStr, "violates"):
		return "constraint violation - use --verbose for details"
	case strings.Contains(errStr, "does not exist"):
		return "referenced object does not exist - use --verbose for details"
	case strings.Contains(errStr, "already exists"):
		return "object already exists - use --verbose for details"
	case strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access denied"):
		return "permission denied - check database user privileges"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "database unreachable - check database.url"
	}

	return "database error - use --verbose for details"
}
