package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

func connectBackoffPolicy() retry.Backoff {
	return retry.WithMaxRetries(connectAttempts, retry.NewExponential(connectBackoff))
}

// openDatabase opens the MySQL pool and waits until it answers a ping.
func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, connectBackoffPolicy(), func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			logrus.WithError(pingErr).Warn("Database not reachable yet, retrying")
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	err = retry.Do(ctx, connectBackoffPolicy(), func(ctx context.Context) error {
		if pingErr := client.Ping(ctx).Err(); pingErr != nil {
			logrus.WithError(pingErr).Warn("Redis not reachable yet, retrying")
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
