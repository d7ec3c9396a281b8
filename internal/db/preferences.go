package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/models"
)

// GetPreference returns the stored settings row; found is false when the user has none.
func (d *DB) GetPreference(ctx context.Context, userID int64) (models.NotificationPreference, bool, error) {
	var p models.NotificationPreference
	found := false
	err := d.withConn(ctx, "get preference", func(conn *pgxpool.Conn) error {
		query := `SELECT general, emergency, silent_mode FROM notification_settings WHERE user_id = $1`
		err := conn.QueryRow(ctx, query, userID).Scan(&p.General, &p.Emergency, &p.SilentMode)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return apperr.Store("get preference", err)
		}
		found = true
		return nil
	})
	return p, found, err
}

// UpsertPreference inserts or replaces the user's single settings row.
func (d *DB) UpsertPreference(ctx context.Context, userID int64, p models.NotificationPreference) error {
	return d.withConn(ctx, "upsert preference", func(conn *pgxpool.Conn) error {
		query := `
		INSERT INTO notification_settings (user_id, general, emergency, silent_mode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET general = EXCLUDED.general, emergency = EXCLUDED.emergency, silent_mode = EXCLUDED.silent_mode`
		if _, err := conn.Exec(ctx, query, userID, p.General, p.Emergency, p.SilentMode); err != nil {
			return apperr.Store("upsert preference", err)
		}
		return nil
	})
}
