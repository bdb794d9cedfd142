package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/broadcast/redisbus"
	"github.com/gaurav-seth/carenest-helper/config"
	"github.com/gaurav-seth/carenest-helper/store"
	bunstore "github.com/gaurav-seth/carenest-helper/store/bun"
	etcdstore "github.com/gaurav-seth/carenest-helper/store/etcd"
	"github.com/gaurav-seth/carenest-helper/store/memory"
	mongostore "github.com/gaurav-seth/carenest-helper/store/mongo"
	pgstore "github.com/gaurav-seth/carenest-helper/store/postgres"
	redisstore "github.com/gaurav-seth/carenest-helper/store/redis"
	sqlitestore "github.com/gaurav-seth/carenest-helper/store/sqlite"
)

const etcdDialTimeout = 5 * time.Second

// closers collects resources the hub does not own, closed in reverse.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i].Close())
	}
	return errors.Join(errs...)
}

func newRedisClient(addr string) (*goredis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return goredis.NewClient(opts), nil
	}
	return goredis.NewClient(&goredis.Options{Addr: addr}), nil
}

// openStore opens the configured store. Extra resources that outlive the
// store's own Close are appended to res.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger, res *closers) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return pgstore.New(ctx, cfg.DSN, pgstore.WithLogger(logger))
	case config.DriverBun:
		return bunstore.Open(cfg.DSN, bunstore.WithLogger(logger)), nil
	case config.DriverSQLite:
		return sqlitestore.Open(cfg.DSN, sqlitestore.WithLogger(logger))
	case config.DriverRedis:
		client, err := newRedisClient(cfg.DSN)
		if err != nil {
			return nil, err
		}
		*res = append(*res, client)
		return redisstore.New(client, redisstore.WithLogger(logger)), nil
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.DSN, cfg.Database, mongostore.WithLogger(logger))
	case config.DriverEtcd:
		return etcdstore.Open(cfg.Endpoints, etcdDialTimeout, etcdstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openBus opens the configured event bus.
func openBus(cfg config.BusConfig, logger *slog.Logger, res *closers) (broadcast.Bus, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return broadcast.NewBroker(logger, broadcast.WithAckTimeout(cfg.AckTimeout.Std())), nil
	case config.DriverRedis:
		client, err := newRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		*res = append(*res, client)
		return redisbus.New(client,
			redisbus.WithLogger(logger),
			redisbus.WithAckTimeout(cfg.AckTimeout.Std()),
		), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
