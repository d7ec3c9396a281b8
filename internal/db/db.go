package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS help_requests (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL,
	message    TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	zone_risk  TEXT NOT NULL,
	user_risk  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS help_requests_location_idx ON help_requests (latitude, longitude);
CREATE INDEX IF NOT EXISTS help_requests_user_idx ON help_requests (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notification_settings (
	user_id     BIGINT PRIMARY KEY,
	general     BOOLEAN NOT NULL DEFAULT FALSE,
	emergency   BOOLEAN NOT NULL DEFAULT TRUE,
	silent_mode BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS notification_tokens (
	user_id    BIGINT PRIMARY KEY,
	expo_token TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// DB is the Postgres-backed store. Each operation acquires a pooled
// connection for its statements and releases it before returning.
type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string, logger *logging.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = utils.Retry(ctx, logger, 5, 2*time.Second, func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	return d.withConn(ctx, "migrate", func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, schema); err != nil {
			return apperr.Store("migrate", err)
		}
		return nil
	})
}

func (d *DB) Close() {
	d.Pool.Close()
}

func (d *DB) withConn(ctx context.Context, op string, fn func(conn *pgxpool.Conn) error) error {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return apperr.Store(op, err)
	}
	defer conn.Release()
	return fn(conn)
}

// Box is an inclusive latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat, MinLon, MaxLon float64
}

// NearbyBox returns the square of half-width delta degrees around a point.
func NearbyBox(lat, lon, delta float64) Box {
	return Box{MinLat: lat - delta, MaxLat: lat + delta, MinLon: lon - delta, MaxLon: lon + delta}
}

func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
