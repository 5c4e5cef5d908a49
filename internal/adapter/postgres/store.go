package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riskgate/riskgate/internal/domain"
	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Applicants ---

const applicantColumns = `id, loan_amount, term_months, interest_rate, installment, annual_income,
	dti, fico_score, delinquencies_2y, revolving_util, employment_years,
	home_ownership, purpose, version, created_at, updated_at`

func scanApplicant(row scannable) (applicant.Applicant, error) {
	var a applicant.Applicant
	err := row.Scan(
		&a.ID, &a.LoanAmount, &a.TermMonths, &a.InterestRate, &a.Installment, &a.AnnualIncome,
		&a.DTI, &a.FicoScore, &a.Delinquencies, &a.RevolvingUtil, &a.EmploymentYrs,
		&a.HomeOwnership, &a.Purpose, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (s *Store) CreateApplicant(ctx context.Context, req applicant.CreateRequest) (*applicant.Applicant, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO applicants (loan_amount, term_months, interest_rate, installment, annual_income,
			dti, fico_score, delinquencies_2y, revolving_util, employment_years, home_ownership, purpose)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+applicantColumns,
		req.LoanAmount, req.TermMonths, req.InterestRate, req.Installment, req.AnnualIncome,
		req.DTI, req.FicoScore, req.Delinquencies, req.RevolvingUtil, req.EmploymentYrs,
		string(req.HomeOwnership), string(req.Purpose))

	a, err := scanApplicant(row)
	if err != nil {
		return nil, fmt.Errorf("create applicant: %w", err)
	}
	return &a, nil
}

func (s *Store) GetApplicant(ctx context.Context, id string) (*applicant.Applicant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+applicantColumns+` FROM applicants WHERE id = $1`, id)

	a, err := scanApplicant(row)
	if err != nil {
		return nil, notFoundWrap(err, "get applicant %s", id)
	}
	return &a, nil
}

func (s *Store) ListApplicants(ctx context.Context, limit int) ([]applicant.Applicant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicantColumns+` FROM applicants ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	defer rows.Close()

	var applicants []applicant.Applicant
	for rows.Next() {
		a, err := scanApplicant(rows)
		if err != nil {
			return nil, err
		}
		applicants = append(applicants, a)
	}
	return applicants, rows.Err()
}

// --- Decisions ---

const decisionColumns = `id, applicant_id, route, outcome, default_probability, ml_confidence,
	risk_score, model, verdicts, tokens_in, tokens_out, cost_usd, latency_ms,
	key_switches, fairness_triggered, fairness_changed, version, created_at, updated_at`

func scanDecision(row scannable) (decision.Decision, error) {
	var d decision.Decision
	var verdictsJSON []byte
	err := row.Scan(
		&d.ID, &d.ApplicantID, &d.Route, &d.Outcome, &d.DefaultProbability, &d.MLConfidence,
		&d.RiskScore, &d.Model, &verdictsJSON, &d.TokensIn, &d.TokensOut, &d.CostUSD, &d.LatencyMs,
		&d.KeySwitches, &d.FairnessTriggered, &d.FairnessChanged, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}
	if len(verdictsJSON) > 0 {
		if err := json.Unmarshal(verdictsJSON, &d.Verdicts); err != nil {
			return d, fmt.Errorf("unmarshal verdicts: %w", err)
		}
	}
	return d, nil
}

// CreateDecision inserts the decision and fills in the DB-generated ID,
// version and timestamps.
func (s *Store) CreateDecision(ctx context.Context, d *decision.Decision) error {
	var verdictsJSON []byte
	if len(d.Verdicts) > 0 {
		var err error
		verdictsJSON, err = json.Marshal(d.Verdicts)
		if err != nil {
			return fmt.Errorf("marshal verdicts: %w", err)
		}
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO decisions (applicant_id, route, outcome, default_probability, ml_confidence,
			risk_score, model, verdicts, tokens_in, tokens_out, cost_usd, latency_ms,
			key_switches, fairness_triggered, fairness_changed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, version, created_at, updated_at`,
		d.ApplicantID, string(d.Route), string(d.Outcome), d.DefaultProbability, d.MLConfidence,
		d.RiskScore, d.Model, verdictsJSON, d.TokensIn, d.TokensOut, d.CostUSD, d.LatencyMs,
		d.KeySwitches, d.FairnessTriggered, d.FairnessChanged)

	if err := row.Scan(&d.ID, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, id string) (*decision.Decision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`, id)

	d, err := scanDecision(row)
	if err != nil {
		return nil, notFoundWrap(err, "get decision %s", id)
	}
	return &d, nil
}

func (s *Store) ListDecisions(ctx context.Context, limit int) ([]decision.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+decisionColumns+` FROM decisions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []decision.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// UpdateDecision persists outcome changes (underwriter review resolution)
// with optimistic locking on the version column.
func (s *Store) UpdateDecision(ctx context.Context, d *decision.Decision) error {
	var verdictsJSON []byte
	if len(d.Verdicts) > 0 {
		var err error
		verdictsJSON, err = json.Marshal(d.Verdicts)
		if err != nil {
			return fmt.Errorf("marshal verdicts: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions SET outcome = $2, risk_score = $3, verdicts = $4,
			fairness_triggered = $5, fairness_changed = $6, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $7`,
		d.ID, string(d.Outcome), d.RiskScore, verdictsJSON,
		d.FairnessTriggered, d.FairnessChanged, d.Version)
	if err != nil {
		return fmt.Errorf("update decision %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update decision %s: %w", d.ID, domain.ErrConflict)
	}
	d.Version++
	return nil
}
