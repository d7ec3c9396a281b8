package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/models"
)

// CountNearby counts reports inside the delta-degree box around lat/lon.
func (d *DB) CountNearby(ctx context.Context, lat, lon, delta float64) (int, error) {
	box := NearbyBox(lat, lon, delta)
	var n int
	err := d.withConn(ctx, "count nearby reports", func(conn *pgxpool.Conn) error {
		query := `
		SELECT COUNT(*) FROM help_requests
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4`
		if err := conn.QueryRow(ctx, query, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon).Scan(&n); err != nil {
			return apperr.Store("count nearby reports", err)
		}
		return nil
	})
	return n, err
}

// InsertReport persists r and returns its new ID.
func (d *DB) InsertReport(ctx context.Context, r models.HelpReport) (int64, error) {
	var id int64
	err := d.withConn(ctx, "insert report", func(conn *pgxpool.Conn) error {
		query := `
		INSERT INTO help_requests (user_id, message, latitude, longitude, zone_risk, user_risk, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
		err := conn.QueryRow(ctx, query,
			r.ReporterID,
			r.Message,
			r.Latitude,
			r.Longitude,
			string(r.ZoneRisk),
			string(r.UserRisk),
			string(r.Status),
			r.CreatedAt,
		).Scan(&id)
		if err != nil {
			return apperr.Store("insert report", err)
		}
		return nil
	})
	return id, err
}

// ReportsByUser returns the user's reports newest first, optionally filtered by status.
func (d *DB) ReportsByUser(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error) {
	var list []models.HelpReport
	err := d.withConn(ctx, "select reports", func(conn *pgxpool.Conn) error {
		query := `
		SELECT id, user_id, message, latitude, longitude, zone_risk, user_risk, status, created_at
		FROM help_requests
		WHERE user_id = $1`
		args := []interface{}{userID}
		if status != "" {
			query += " AND status = $2"
			args = append(args, string(status))
		}
		query += " ORDER BY created_at DESC, id DESC"

		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return apperr.Store("select reports", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r models.HelpReport
			var zone, user, st string
			var created time.Time
			if err := rows.Scan(&r.ID, &r.ReporterID, &r.Message, &r.Latitude, &r.Longitude, &zone, &user, &st, &created); err != nil {
				return apperr.Store("scan report", err)
			}
			r.ZoneRisk = models.ZoneRisk(zone)
			r.UserRisk = models.UserRisk(user)
			r.Status = models.ReportStatus(st)
			r.CreatedAt = created
			list = append(list, r)
		}
		if err := rows.Err(); err != nil {
			return apperr.Store("select reports", err)
		}
		return nil
	})
	return list, err
}

// UpdateReportContent rewrites the message and location of an owned report.
// Risk fields keep their creation-time values.
func (d *DB) UpdateReportContent(ctx context.Context, userID, id int64, message string, lat, lon float64) error {
	return d.execOwned(ctx, "update report", `
		UPDATE help_requests SET message = $1, latitude = $2, longitude = $3
		WHERE id = $4 AND user_id = $5`,
		message, lat, lon, id, userID)
}

func (d *DB) UpdateReportStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error {
	return d.execOwned(ctx, "update report status", `
		UPDATE help_requests SET status = $1
		WHERE id = $2 AND user_id = $3`,
		string(status), id, userID)
}

func (d *DB) DeleteReport(ctx context.Context, userID, id int64) error {
	return d.execOwned(ctx, "delete report", `
		DELETE FROM help_requests WHERE id = $1 AND user_id = $2`,
		id, userID)
}

// execOwned runs a statement scoped to one owner and maps zero rows to ErrNotFound.
func (d *DB) execOwned(ctx context.Context, op, query string, args ...interface{}) error {
	return d.withConn(ctx, op, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return apperr.Store(op, err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}
