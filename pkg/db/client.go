package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/angelmondragon/marketcore/pkg/config"
	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
	"github.com/angelmondragon/marketcore/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client wraps the shared GORM connection.
type Client struct {
	conn      *gorm.DB
	isolation sql.IsolationLevel
	txTimeout time.Duration
	logg      *logger.Logger
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option tweaks a Client built by NewFromGorm.
type Option func(*Client)

// WithIsolation sets the isolation level used by WithTx.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(c *Client) { c.isolation = level }
}

// WithTxTimeout bounds every transaction opened by WithTx.
func WithTxTimeout(d time.Duration) Option {
	return func(c *Client) { c.txTimeout = d }
}

// WithLogger attaches a logger used to report transaction retries.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) { c.logg = logg }
}

// New boots a GORM client using the provided configuration.
func New(ctx context.Context, cfg config.DBConfig, flags config.FeatureFlagsConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	if flags.UseSQLite {
		dialector = sqlite.Open(cfg.DSN)
	} else {
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	gormCfg := &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	applyPoolSettings(sqlDB, cfg, flags.UseSQLite)

	isolation, err := ParseIsolation(cfg.Isolation)
	if err != nil {
		return nil, err
	}
	if flags.UseSQLite {
		// sqlite serializes writers itself and rejects explicit levels.
		isolation = sql.LevelDefault
	}

	if logg != nil {
		logg.Info(ctx, "database connection established")
	}

	return &Client{conn: conn, isolation: isolation, txTimeout: cfg.TxTimeout, logg: logg}, nil
}

// NewFromGorm wraps an existing connection, mostly for tests.
func NewFromGorm(conn *gorm.DB, opts ...Option) *Client {
	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig, useSQLite bool) {
	if useSQLite {
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// ParseIsolation maps a configured level name onto database/sql.
func ParseIsolation(value string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read_committed", "read committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unsupported isolation level %q", value)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
// Transient contention (serialization failures, deadlocks, lock timeouts)
// is retried exactly once; fn must therefore be safe to re-run.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := c.runTx(ctx, fn)
	if err == nil || !pkgerrors.IsTransient(err) {
		return err
	}
	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "sqlstate", pkgerrors.SQLState(err)), "retrying transaction after contention")
	}
	return c.runTx(ctx, fn)
}

func (c *Client) runTx(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	if c.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.txTimeout)
		defer cancel()
	}

	var opts *sql.TxOptions
	if c.isolation != sql.LevelDefault {
		opts = &sql.TxOptions{Isolation: c.isolation}
	}

	tx := c.conn.WithContext(ctx).Begin(opts)
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
