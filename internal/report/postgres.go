package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/fundscope/internal/contracts"
)

// TxBeginner is satisfied by *pgxpool.Pool
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS fundscope;

CREATE TABLE IF NOT EXISTS fundscope.runs (
	run_id       TEXT PRIMARY KEY,
	strategy_id  TEXT NOT NULL,
	config_hash  TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	cancelled    BOOLEAN NOT NULL DEFAULT FALSE,
	stats        JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS fundscope.ranked (
	run_id        TEXT NOT NULL REFERENCES fundscope.runs(run_id) ON DELETE CASCADE,
	fund_code     TEXT NOT NULL,
	fund_name     TEXT NOT NULL,
	category      TEXT NOT NULL,
	rank          INT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	annual_return DOUBLE PRECISION,
	volatility    DOUBLE PRECISION,
	sharpe        DOUBLE PRECISION,
	max_drawdown  DOUBLE PRECISION,
	beta          DOUBLE PRECISION,
	fee           DOUBLE PRECISION,
	manager_tenure DOUBLE PRECISION,
	concentration DOUBLE PRECISION,
	manager       TEXT,
	observations  INT NOT NULL,
	recommended   BOOLEAN NOT NULL,
	weights       JSONB NOT NULL,
	PRIMARY KEY (run_id, fund_code)
);

-- 기존 테이블 마이그레이션
ALTER TABLE fundscope.ranked ADD COLUMN IF NOT EXISTS manager_tenure DOUBLE PRECISION;
ALTER TABLE fundscope.ranked ADD COLUMN IF NOT EXISTS concentration DOUBLE PRECISION;
ALTER TABLE fundscope.ranked ADD COLUMN IF NOT EXISTS manager TEXT;

CREATE TABLE IF NOT EXISTS fundscope.exclusions (
	run_id    TEXT NOT NULL REFERENCES fundscope.runs(run_id) ON DELETE CASCADE,
	fund_code TEXT NOT NULL,
	stage     TEXT NOT NULL,
	kind      TEXT NOT NULL,
	reason    TEXT NOT NULL
);
`

// Postgres persists reports, one transaction per run
// ⭐ SSOT: 결과 저장은 여기서만
type Postgres struct {
	db TxBeginner
}

// NewPostgres creates a PostgreSQL sink
func NewPostgres(db TxBeginner) *Postgres {
	return &Postgres{db: db}
}

// Name implements contracts.ReportSink
func (p *Postgres) Name() string { return "postgres" }

// EnsureSchema creates the fundscope schema if missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Write implements contracts.ReportSink
func (p *Postgres) Write(ctx context.Context, r *contracts.Report) error {
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Begin transaction
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 같은 run_id 재기록 시 덮어씀 (ranked/exclusions는 cascade)
	_, err = tx.Exec(ctx, "DELETE FROM fundscope.runs WHERE run_id = $1", r.RunID)
	if err != nil {
		return fmt.Errorf("failed to delete old run: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fundscope.runs (
			run_id, strategy_id, config_hash, started_at, completed_at, cancelled, stats
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.RunID, r.StrategyID, r.ConfigHash, r.StartedAt, r.CompletedAt, r.Cancelled, stats)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	rankedQuery := `
		INSERT INTO fundscope.ranked (
			run_id, fund_code, fund_name, category, rank, score,
			annual_return, volatility, sharpe, max_drawdown, beta, fee,
			manager_tenure, concentration, manager,
			observations, recommended, weights
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	for _, s := range r.Ranked {
		weights, err := json.Marshal(s.Weights)
		if err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
		var manager *string
		if s.Manager != nil {
			manager = &s.Manager.Name
		}
		m := s.Metrics
		_, err = tx.Exec(ctx, rankedQuery,
			r.RunID, s.Instrument.ID, s.Instrument.Name, s.Instrument.Category, s.Rank, s.Score,
			m.AnnualReturn, m.Volatility, m.Sharpe, m.MaxDrawdown, m.Beta, m.Fee,
			m.ManagerTenure, m.Concentration, manager,
			m.Observations, s.Recommended, weights,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ranked fund %s: %w", s.Instrument.ID, err)
		}
	}

	for _, e := range r.Excluded {
		_, err := tx.Exec(ctx,
			"INSERT INTO fundscope.exclusions (run_id, fund_code, stage, kind, reason) VALUES ($1, $2, $3, $4, $5)",
			r.RunID, e.InstrumentID, e.Stage, e.Kind, e.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert exclusion: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
