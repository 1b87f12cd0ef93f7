package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/port"
	"brotherowl/internal/infrastructure/config"
	"brotherowl/internal/infrastructure/storage/composite"
	pgrepo "brotherowl/internal/infrastructure/storage/postgres"
	redisrepo "brotherowl/internal/infrastructure/storage/redis"
	sqliterepo "brotherowl/internal/infrastructure/storage/sqlite"
)

// Container owns the storage backends and closes them in reverse order.
type Container struct {
	cfg         *config.Config
	sqliteRepo  *sqliterepo.Repo
	redisRepo   *redisrepo.Repo
	pgRepo      *pgrepo.Repo
	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if cfg.Storage.Enabled {
		if err := c.initStorage(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Container) initStorage() error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}

	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}

	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}

	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(c.cfg.Storage.Redis.TTLSeconds) * time.Second

	c.redisRepo = redisrepo.New(
		rdb,
		c.cfg.Storage.Redis.Prefix,
		ttl,
		c.cfg.Storage.Redis.AlertStream,
		c.cfg.Storage.Redis.AlertChannel,
	)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")

	return nil
}

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}

	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")

	return nil
}

func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}

	c.pgRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

func (c *Container) SQLiteRepo() *sqliterepo.Repo {
	return c.sqliteRepo
}

// Repository fans writes out to every enabled backend. With storage disabled
// it has no backends and every call is a no-op.
func (c *Container) Repository() port.ChainRepository {
	var repos []port.ChainRepository
	// reads are answered by the first backend with data, so faster stores go first
	if c.redisRepo != nil {
		repos = append(repos, c.redisRepo)
	}
	if c.sqliteRepo != nil {
		repos = append(repos, c.sqliteRepo)
	}
	if c.pgRepo != nil {
		repos = append(repos, c.pgRepo)
	}
	return composite.New(repos...)
}

// Close releases all resources in LIFO order.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
