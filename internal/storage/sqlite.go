package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/t77yq/ratewatch/internal/model"
)

// SQLiteAlertStore implements AlertStore using SQLite with one row per
// alert.
type SQLiteAlertStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertStore opens (or creates) the alert database at dbPath.
func NewSQLiteAlertStore(logger *zap.Logger, dbPath string) (*SQLiteAlertStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteAlertStore{
		logger: logger.Named("alert-store"),
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteAlertStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			base_currency TEXT NOT NULL DEFAULT '',
			target_currency TEXT NOT NULL DEFAULT '',
			crypto_id TEXT NOT NULL DEFAULT '',
			crypto_symbol TEXT NOT NULL DEFAULT '',
			condition_direction TEXT NOT NULL,
			condition_threshold TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			status TEXT NOT NULL,
			triggered_at DATETIME,
			created_at DATETIME NOT NULL,
			auto_reset_after_hours INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_enabled ON alerts(enabled);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

const alertColumns = `id, kind, base_currency, target_currency, crypto_id, crypto_symbol,
	condition_direction, condition_threshold, enabled, status,
	triggered_at, created_at, auto_reset_after_hours`

// LoadAll implements AlertStore.LoadAll
func (s *SQLiteAlertStore) LoadAll(ctx context.Context) ([]*model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return alerts, nil
}

// Get implements AlertStore.Get
func (s *SQLiteAlertStore) Get(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		return nil, err
	}
	return alert, nil
}

// Save implements AlertStore.Save
func (s *SQLiteAlertStore) Save(ctx context.Context, alert *model.Alert) error {
	var triggeredAt sql.NullTime
	if alert.TriggeredAt != nil {
		triggeredAt = sql.NullTime{Time: *alert.TriggeredAt, Valid: true}
	}
	var autoReset sql.NullInt64
	if alert.AutoResetAfterHours != nil {
		autoReset = sql.NullInt64{Int64: int64(*alert.AutoResetAfterHours), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		string(alert.Kind),
		alert.BaseCurrency,
		alert.TargetCurrency,
		alert.CryptoID,
		alert.CryptoSymbol,
		string(alert.Condition.Direction),
		alert.Condition.Threshold.String(),
		alert.Enabled,
		string(alert.Status),
		triggeredAt,
		alert.CreatedAt,
		autoReset,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", alert.ID, err)
	}
	return nil
}

// Delete implements AlertStore.Delete
func (s *SQLiteAlertStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	return nil
}

// CountTriggered implements AlertStore.CountTriggered
func (s *SQLiteAlertStore) CountTriggered(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE status = ?",
		string(model.AlertStatusTriggered)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count triggered alerts: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *SQLiteAlertStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var alert model.Alert
	var kind, status, direction, threshold string
	var triggeredAt sql.NullTime
	var createdAt time.Time
	var autoReset sql.NullInt64

	err := row.Scan(
		&alert.ID,
		&kind,
		&alert.BaseCurrency,
		&alert.TargetCurrency,
		&alert.CryptoID,
		&alert.CryptoSymbol,
		&direction,
		&threshold,
		&alert.Enabled,
		&status,
		&triggeredAt,
		&createdAt,
		&autoReset,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.Kind = model.AlertKind(kind)
	alert.Status = model.AlertStatus(status)
	alert.Condition.Direction = model.ConditionDirection(direction)
	alert.CreatedAt = createdAt

	alert.Condition.Threshold, err = decimal.NewFromString(threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to parse threshold for alert %s: %w", alert.ID, err)
	}

	if triggeredAt.Valid {
		t := triggeredAt.Time
		alert.TriggeredAt = &t
	}
	if autoReset.Valid {
		hours := int(autoReset.Int64)
		alert.AutoResetAfterHours = &hours
	}

	return &alert, nil
}
