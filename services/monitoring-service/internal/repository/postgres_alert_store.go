package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const alertsSchema = `
CREATE TABLE IF NOT EXISTS monitoring_alerts (
	id                TEXT PRIMARY KEY,
	client_id         TEXT NOT NULL,
	channel           TEXT NOT NULL,
	check_id          TEXT NOT NULL,
	type              TEXT NOT NULL,
	severity          TEXT NOT NULL,
	status            TEXT NOT NULL,
	title             TEXT NOT NULL,
	short_description TEXT NOT NULL,
	impact            TEXT NOT NULL DEFAULT '',
	suggested_actions JSONB NOT NULL DEFAULT '[]',
	details           JSONB NOT NULL DEFAULT '{}',
	fingerprint       TEXT NOT NULL,
	detected_at       TIMESTAMPTZ NOT NULL,
	acknowledged_at   TIMESTAMPTZ,
	acknowledged_by   TEXT NOT NULL DEFAULT '',
	resolved_at       TIMESTAMPTZ,
	resolved_by       TEXT NOT NULL DEFAULT '',
	resolution_reason TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT monitoring_alerts_client_fingerprint_key UNIQUE (client_id, fingerprint)
);
CREATE INDEX IF NOT EXISTS monitoring_alerts_scope_idx
	ON monitoring_alerts (client_id, status, channel, check_id);
CREATE INDEX IF NOT EXISTS monitoring_alerts_detected_idx
	ON monitoring_alerts (client_id, detected_at DESC);
`

const alertColumns = `id, client_id, channel, check_id, type, severity, status, title, short_description,
	impact, suggested_actions, details, fingerprint, detected_at, acknowledged_at, acknowledged_by,
	resolved_at, resolved_by, resolution_reason, updated_at`

// PostgresAlertStore is the relational alert store. Details are kept as JSONB.
type PostgresAlertStore struct {
	db *sql.DB
}

func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

// Migrate creates the table and indexes if they do not exist.
func (s *PostgresAlertStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, alertsSchema); err != nil {
		return fmt.Errorf("failed to migrate alerts schema: %w", err)
	}
	return nil
}

func (s *PostgresAlertStore) Insert(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}

	actions, err := json.Marshal(nonNilStrings(alert.SuggestedActions))
	if err != nil {
		return fmt.Errorf("failed to encode suggested actions: %w", err)
	}
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("failed to encode alert details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO monitoring_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		alert.ID.Hex(), alert.ClientID, alert.Channel, alert.CheckID, alert.Type, alert.Severity, alert.Status,
		alert.Title, alert.ShortDescription, alert.Impact, actions, details, alert.Fingerprint, alert.DetectedAt,
		alert.AcknowledgedAt, alert.AcknowledgedBy, alert.ResolvedAt, alert.ResolvedBy, alert.ResolutionReason,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", database.MapSQLError(err))
	}
	return nil
}

func (s *PostgresAlertStore) FindByFingerprint(ctx context.Context, clientID, fingerprint string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM monitoring_alerts
		WHERE client_id = $1 AND fingerprint = $2`, clientID, fingerprint)
	return scanAlert(row)
}

func (s *PostgresAlertStore) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, database.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM monitoring_alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (s *PostgresAlertStore) Transition(ctx context.Context, id string, t models.StatusTransition) (*models.Alert, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, database.ErrInvalidID
	}

	set, args := transitionSQL(t, 2)
	args = append([]interface{}{id}, args...)
	args = append(args, pq.Array(statusStrings(t.From)))

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`UPDATE monitoring_alerts SET %s
		WHERE id = $1 AND status = ANY($%d) RETURNING %s`, set, len(args), alertColumns), args...)
	alert, err := scanAlert(row)
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM monitoring_alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, database.MapSQLError(err)
	}
	if !exists {
		return nil, database.ErrNotFound
	}
	return nil, database.ErrConflict
}

func (s *PostgresAlertStore) ResolveOpen(ctx context.Context, scope models.ResolveScope, t models.StatusTransition) (int64, error) {
	set, args := transitionSQL(t, 1)
	n := len(args)
	args = append(args, scope.ClientID, scope.Channel, scope.CheckID, pq.Array(statusStrings(t.From)))

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE monitoring_alerts SET %s
		WHERE client_id = $%d AND channel = $%d AND check_id = $%d AND status = ANY($%d)`,
		set, n+1, n+2, n+3, n+4), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", database.MapSQLError(err))
	}
	return result.RowsAffected()
}

func (s *PostgresAlertStore) List(ctx context.Context, clientID string, f models.AlertFilter) ([]models.Alert, error) {
	where := []string{"TRUE"}
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if clientID != "" {
		add("client_id = $%d", clientID)
	}

	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.CheckID != "" {
		add("check_id = $%d", f.CheckID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(statusStrings(f.Statuses)))
	}

	query := `SELECT ` + alertColumns + ` FROM monitoring_alerts WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY detected_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", database.MapSQLError(err))
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// transitionSQL renders the SET clause for t with placeholders starting at first.
func transitionSQL(t models.StatusTransition, first int) (string, []interface{}) {
	cols := []string{"status", "updated_at"}
	args := []interface{}{t.To, t.At}
	switch t.To {
	case models.AlertStatusAcknowledged:
		cols = append(cols, "acknowledged_at", "acknowledged_by")
		args = append(args, t.At, t.Actor)
	case models.AlertStatusResolved:
		cols = append(cols, "resolved_at", "resolved_by", "resolution_reason")
		args = append(args, t.At, t.Actor, t.Reason)
	}

	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s = $%d", c, first+i)
	}
	return strings.Join(parts, ", "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		alert   models.Alert
		id      string
		actions []byte
		details []byte
		ackAt   sql.NullTime
		resAt   sql.NullTime
	)

	err := row.Scan(&id, &alert.ClientID, &alert.Channel, &alert.CheckID, &alert.Type, &alert.Severity,
		&alert.Status, &alert.Title, &alert.ShortDescription, &alert.Impact, &actions, &details,
		&alert.Fingerprint, &alert.DetectedAt, &ackAt, &alert.AcknowledgedBy, &resAt, &alert.ResolvedBy,
		&alert.ResolutionReason, &alert.UpdatedAt)
	if err != nil {
		return nil, database.MapSQLError(err)
	}

	if alert.ID, err = primitive.ObjectIDFromHex(id); err != nil {
		return nil, fmt.Errorf("corrupt alert id %q: %w", id, err)
	}
	if err := json.Unmarshal(actions, &alert.SuggestedActions); err != nil {
		return nil, fmt.Errorf("failed to decode suggested actions: %w", err)
	}
	if err := json.Unmarshal(details, &alert.Details); err != nil {
		return nil, fmt.Errorf("failed to decode alert details: %w", err)
	}
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		alert.ResolvedAt = &t
	}
	return &alert, nil
}

func statusStrings(statuses []models.AlertStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
