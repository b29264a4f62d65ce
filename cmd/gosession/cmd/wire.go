package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/config"
	"github.com/MrEthical07/goSession/internal/logger"
	"github.com/MrEthical07/goSession/session"
	boltstore "github.com/MrEthical07/goSession/storage/bbolt"
	"github.com/MrEthical07/goSession/storage/postgres"
	"github.com/MrEthical07/goSession/storage/sqlite"
)

// runtime is everything a command needs, plus what must be released on exit.
type runtime struct {
	app     config.App
	logger  *zap.Logger
	engine  *goSession.Engine
	redis   redis.UniversalClient
	closers []func() error
}

func newRuntime(ctx context.Context, app config.App) (_ *runtime, err error) {
	log, err := logger.New(app.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rt := &runtime{app: app, logger: log}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	b := goSession.New().WithConfig(app.Session).WithLogger(log)

	if err := rt.wireStorage(ctx, b); err != nil {
		return nil, err
	}

	sinks := goSession.MultiSink{goSession.NewZapAuditSink(log)}
	if len(app.Kafka.Brokers) > 0 {
		kafkaSink := goSession.NewKafkaAuditSink(app.Kafka.Brokers, app.Kafka.Topic, log)
		rt.closers = append(rt.closers, kafkaSink.Close)
		sinks = append(sinks, kafkaSink)
	}
	b.WithAuditSink(sinks)

	tp := sdktrace.NewTracerProvider()
	rt.closers = append(rt.closers, func() error { return tp.Shutdown(context.Background()) })
	b.WithTracerProvider(tp)

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) wireStorage(ctx context.Context, b *goSession.Builder) error {
	app := rt.app
	switch app.Storage.Driver {
	case config.DriverMemory:
		return nil

	case config.DriverRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{app.Redis.Addr},
			Password: app.Redis.Password,
			DB:       app.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", app.Redis.Addr, err)
		}
		rt.redis = client
		b.WithRedis(client)
		return nil
	}

	hasher, err := session.NewHasher(app.Session.Session.SecretKey)
	if err != nil {
		return err
	}

	switch app.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, app.Storage.DSN)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		b.WithSessionRepository(postgres.NewSessionRepository(pool, hasher))
		b.WithUserRepository(postgres.NewUserRepository(pool))

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, app.Storage.DSN)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, db.Close)
		b.WithSessionRepository(sqlite.NewSessionRepository(db, hasher))
		b.WithUserRepository(sqlite.NewUserRepository(db))

	case config.DriverBolt:
		if dir := filepath.Dir(app.Storage.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
		}
		store, err := boltstore.Open(app.Storage.DSN)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, store.Close)
		b.WithSessionRepository(boltstore.NewSessionRepository(store, hasher))
		b.WithUserRepository(boltstore.NewUserRepository(store))

	default:
		return fmt.Errorf("unknown storage driver %q", app.Storage.Driver)
	}
	return nil
}

// Close drains the engine first so queued audit events reach the sinks, then
// releases storage and sinks in reverse order.
func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		rt.logger.Warn("shutdown", zap.Error(err))
	}
	_ = rt.logger.Sync()
}
