package repo

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AssessmentRecord is one persisted outlook evaluation.
type AssessmentRecord struct {
	ID                    string                `json:"id"`
	ServiceID             string                `json:"serviceId"`
	EvaluatedAt           time.Time             `json:"evaluatedAt"`
	HorizonDays           int                   `json:"horizonDays"`
	BreachProbabilityPct  int                   `json:"breachProbabilityPct"`
	FirstBreachOffsetDays int                   `json:"firstBreachOffsetDays"`
	Tier                  models.RiskTier       `json:"tier"`
	HeadlineConfidence    float64               `json:"headlineConfidence"`
	AnomalyCount          int                   `json:"anomalyCount"`
	ImmediateActions      int                   `json:"immediateActions"`
	Outlook               models.ServiceOutlook `json:"outlook"`
}

type assessmentRow struct {
	ID                    string        `db:"id"`
	ServiceID             string        `db:"service_id"`
	EvaluatedAt           time.Time     `db:"evaluated_at"`
	HorizonDays           int           `db:"horizon_days"`
	BreachProbabilityPct  int           `db:"breach_probability_pct"`
	FirstBreachOffsetDays sql.NullInt64 `db:"first_breach_offset_days"`
	Tier                  string        `db:"tier"`
	HeadlineConfidence    float64       `db:"headline_confidence"`
	AnomalyCount          int           `db:"anomaly_count"`
	ImmediateActions      int           `db:"immediate_actions"`
	Outlook               []byte        `db:"outlook"`
}

// PostgresHistory stores evaluated outlooks in PostgreSQL.
type PostgresHistory struct {
	db *sqlx.DB
}

// NewPostgresHistory connects, verifies and migrates the assessment schema.
func NewPostgresHistory(dsn string) (*PostgresHistory, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	h := &PostgresHistory{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return h, nil
}

func (h *PostgresHistory) migrate() error {
	schema, err := migrationsFS.ReadFile("migrations/001_assessments.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := h.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// SaveAssessment appends one outlook evaluation.
func (h *PostgresHistory) SaveAssessment(ctx context.Context, outlook models.ServiceOutlook) error {
	payload, err := json.Marshal(outlook)
	if err != nil {
		return fmt.Errorf("encode outlook: %w", err)
	}

	evaluatedAt := outlook.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}

	var firstBreach sql.NullInt64
	if outlook.Assessment.HasBreach() {
		firstBreach = sql.NullInt64{Int64: int64(outlook.Assessment.FirstBreachOffsetDays), Valid: true}
	}

	anomalies := 0
	for _, flag := range outlook.Anomalies {
		if flag.IsAnomaly {
			anomalies++
		}
	}

	query := `
		INSERT INTO sla_assessments (
			id, service_id, evaluated_at, horizon_days,
			breach_probability_pct, first_breach_offset_days, tier,
			headline_confidence, anomaly_count, immediate_actions, outlook
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = h.db.ExecContext(ctx, query,
		uuid.New().String(), outlook.Service.ID, evaluatedAt, outlook.Forecast.HorizonDays,
		outlook.Assessment.BreachProbabilityPct, firstBreach, string(outlook.Assessment.Tier),
		outlook.Insights.HeadlineConfidence, anomalies, outlook.Insights.ImmediateActions, payload,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// ListAssessments returns the newest evaluations for a service, newest first.
func (h *PostgresHistory) ListAssessments(ctx context.Context, serviceID string, limit int) ([]AssessmentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, service_id, evaluated_at, horizon_days,
			breach_probability_pct, first_breach_offset_days, tier,
			headline_confidence, anomaly_count, immediate_actions, outlook
		FROM sla_assessments
		WHERE service_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`
	var rows []assessmentRow
	if err := h.db.SelectContext(ctx, &rows, query, serviceID, limit); err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}

	records := make([]AssessmentRecord, 0, len(rows))
	for _, row := range rows {
		rec := AssessmentRecord{
			ID:                    row.ID,
			ServiceID:             row.ServiceID,
			EvaluatedAt:           row.EvaluatedAt,
			HorizonDays:           row.HorizonDays,
			BreachProbabilityPct:  row.BreachProbabilityPct,
			FirstBreachOffsetDays: models.NoBreach,
			Tier:                  models.RiskTier(row.Tier),
			HeadlineConfidence:    row.HeadlineConfidence,
			AnomalyCount:          row.AnomalyCount,
			ImmediateActions:      row.ImmediateActions,
		}
		if row.FirstBreachOffsetDays.Valid {
			rec.FirstBreachOffsetDays = int(row.FirstBreachOffsetDays.Int64)
		}
		if err := json.Unmarshal(row.Outlook, &rec.Outlook); err != nil {
			return nil, fmt.Errorf("decode outlook %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close releases the connection pool.
func (h *PostgresHistory) Close() error {
	return h.db.Close()
}
