package command

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/root-talis/henka/v2"
	"github.com/root-talis/henka/v2/config"
	"github.com/root-talis/henka/v2/driver"
	"github.com/root-talis/henka/v2/driver/mysql"
	"github.com/root-talis/henka/v2/driver/postgres"
	"github.com/root-talis/henka/v2/driver/sqlite"
	"github.com/root-talis/henka/v2/lock"
	"github.com/root-talis/henka/v2/lock/redislock"
	"github.com/root-talis/henka/v2/logger"
	"github.com/root-talis/henka/v2/source"
	"github.com/root-talis/henka/v2/source/files"
)

// container holds everything a command needs and closes it afterwards.
type container struct {
	migrator henka.Henka
	closers  []func() error
}

func (c *container) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i]())
	}
	return err
}

func setup(ctx context.Context, conf *config.Config, log logger.Logger) (*container, error) {
	c := &container{}

	src, err := files.NewFilesSource(os.DirFS(conf.Migrations.Dir), ".")
	if err != nil {
		return nil, fmt.Errorf("error open migrations directory: %w", err)
	}

	registry, err := source.Load(src)
	if err != nil {
		return nil, fmt.Errorf("error load migrations: %w", err)
	}

	mode := lock.Mode(conf.Lock.Mode)

	drv, locker, err := c.connect(ctx, conf, mode)
	if err != nil {
		return nil, multierr.Append(err, c.Close())
	}

	if conf.Lock.Redis != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Lock.Redis.Addr,
			Password: conf.Lock.Redis.Password,
			DB:       conf.Lock.Redis.DB,
		})
		c.closers = append(c.closers, client.Close)

		locker = redislock.New(client, redislock.Config{
			TTL:  conf.Lock.Redis.TTL,
			Mode: mode,
		})
	}

	c.migrator = henka.New(registry, drv,
		henka.WithLogger(log),
		henka.WithLocker(locker),
		henka.WithLockKey(conf.Lock.Key),
	)

	return c, nil
}

func (c *container) connect(ctx context.Context, conf *config.Config, mode lock.Mode) (driver.Driver, lock.Locker, error) {
	switch conf.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, conf.DSN)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, func() error {
			pool.Close()
			return nil
		})

		drv := postgres.NewDriver(pool, postgres.DriverConfig{
			SchemaName:          conf.Database,
			MigrationsTableName: conf.HistoryTable,
		})
		return drv, postgres.NewLocker(pool, mode), nil

	case config.DriverMySQL:
		db, err := sql.Open("mysql", conf.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error open mysql connection: %w", err)
		}
		c.closers = append(c.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping db error: %w", err)
		}

		drv := mysql.NewDriver(db, mysql.DriverConfig{
			DatabaseName:        conf.Database,
			MigrationsTableName: conf.HistoryTable,
		})
		return drv, mysql.NewLocker(db, mode), nil

	case config.DriverSQLite:
		db, err := sqlite.Open(conf.DSN)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, db.Close)

		drv := sqlite.NewDriver(db, sqlite.DriverConfig{MigrationsTableName: conf.HistoryTable})
		return drv, lock.NewLocal(mode), nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %s", conf.Driver)
	}
}
