package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/models"
)

func (d *DB) GetToken(ctx context.Context, userID int64) (string, bool, error) {
	var token string
	found := false
	err := d.withConn(ctx, "get token", func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx, `SELECT expo_token FROM notification_tokens WHERE user_id = $1`, userID).Scan(&token)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return apperr.Store("get token", err)
		}
		found = true
		return nil
	})
	return token, found, err
}

// UpsertToken stores token as the user's only device token, replacing any older one.
func (d *DB) UpsertToken(ctx context.Context, userID int64, token string) error {
	return d.withConn(ctx, "upsert token", func(conn *pgxpool.Conn) error {
		query := `
		INSERT INTO notification_tokens (user_id, expo_token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET expo_token = EXCLUDED.expo_token, updated_at = NOW()`
		if _, err := conn.Exec(ctx, query, userID, token); err != nil {
			return apperr.Store("upsert token", err)
		}
		return nil
	})
}

// ListRecipients returns every device token joined with its owner's settings row, if any.
func (d *DB) ListRecipients(ctx context.Context) ([]models.Recipient, error) {
	var list []models.Recipient
	err := d.withConn(ctx, "list recipients", func(conn *pgxpool.Conn) error {
		query := `
		SELECT nt.user_id, nt.expo_token, ns.general, ns.emergency, ns.silent_mode
		FROM notification_tokens nt
		LEFT JOIN notification_settings ns ON ns.user_id = nt.user_id`
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return apperr.Store("list recipients", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r models.Recipient
			var general, emergency, silent sql.NullBool
			if err := rows.Scan(&r.UserID, &r.PushToken, &general, &emergency, &silent); err != nil {
				return apperr.Store("scan recipient", err)
			}
			if general.Valid {
				r.Preference = &models.NotificationPreference{
					General:    general.Bool,
					Emergency:  emergency.Bool,
					SilentMode: silent.Bool,
				}
			}
			list = append(list, r)
		}
		if err := rows.Err(); err != nil {
			return apperr.Store("list recipients", err)
		}
		return nil
	})
	return list, err
}
