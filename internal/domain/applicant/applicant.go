// Package applicant defines the loan application domain entity.
package applicant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/riskgate/riskgate/internal/domain"
)

// HomeOwnership is the applicant's housing status.
type HomeOwnership string

const (
	HomeRent     HomeOwnership = "rent"
	HomeOwn      HomeOwnership = "own"
	HomeMortgage HomeOwnership = "mortgage"
	HomeOther    HomeOwnership = "other"
)

// Purpose is the stated purpose of the loan.
type Purpose string

const (
	PurposeDebtConsolidation Purpose = "debt_consolidation"
	PurposeCreditCard        Purpose = "credit_card"
	PurposeHomeImprovement   Purpose = "home_improvement"
	PurposeMajorPurchase     Purpose = "major_purchase"
	PurposeSmallBusiness     Purpose = "small_business"
	PurposeOther             Purpose = "other"
)

// Applicant represents a single loan application to be decisioned.
// Fields mirror the subset of the Lending Club schema the model is trained on.
type Applicant struct {
	ID             string        `json:"id"`
	LoanAmount     float64       `json:"loan_amount"`
	TermMonths     int           `json:"term_months"`
	InterestRate   float64       `json:"interest_rate"`
	Installment    float64       `json:"installment"`
	AnnualIncome   float64       `json:"annual_income"`
	DTI            float64       `json:"dti"`
	FicoScore      int           `json:"fico_score"`
	Delinquencies  int           `json:"delinquencies_2y"`
	RevolvingUtil  float64       `json:"revolving_util"`
	EmploymentYrs  float64       `json:"employment_years"`
	HomeOwnership  HomeOwnership `json:"home_ownership"`
	Purpose        Purpose       `json:"purpose"`
	Version        int           `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// CreateRequest holds the fields needed to register a new applicant.
type CreateRequest struct {
	LoanAmount    float64       `json:"loan_amount"`
	TermMonths    int           `json:"term_months"`
	InterestRate  float64       `json:"interest_rate"`
	Installment   float64       `json:"installment"`
	AnnualIncome  float64       `json:"annual_income"`
	DTI           float64       `json:"dti"`
	FicoScore     int           `json:"fico_score"`
	Delinquencies int           `json:"delinquencies_2y"`
	RevolvingUtil float64       `json:"revolving_util"`
	EmploymentYrs float64       `json:"employment_years"`
	HomeOwnership HomeOwnership `json:"home_ownership"`
	Purpose       Purpose       `json:"purpose"`
}

// Validate checks the request against basic underwriting bounds.
func (r *CreateRequest) Validate() error {
	if r.LoanAmount <= 0 {
		return fmt.Errorf("%w: loan_amount must be positive", domain.ErrValidation)
	}
	if r.TermMonths != 36 && r.TermMonths != 60 {
		return fmt.Errorf("%w: term_months must be 36 or 60", domain.ErrValidation)
	}
	if r.InterestRate <= 0 || r.InterestRate > 100 {
		return fmt.Errorf("%w: interest_rate must be in (0, 100]", domain.ErrValidation)
	}
	if r.AnnualIncome < 0 {
		return fmt.Errorf("%w: annual_income must not be negative", domain.ErrValidation)
	}
	if r.DTI < 0 {
		return fmt.Errorf("%w: dti must not be negative", domain.ErrValidation)
	}
	if r.FicoScore < 300 || r.FicoScore > 850 {
		return fmt.Errorf("%w: fico_score must be in [300, 850]", domain.ErrValidation)
	}
	if r.RevolvingUtil < 0 {
		return fmt.Errorf("%w: revolving_util must not be negative", domain.ErrValidation)
	}
	switch r.HomeOwnership {
	case HomeRent, HomeOwn, HomeMortgage, HomeOther:
	default:
		return fmt.Errorf("%w: unknown home_ownership %q", domain.ErrValidation, r.HomeOwnership)
	}
	switch r.Purpose {
	case PurposeDebtConsolidation, PurposeCreditCard, PurposeHomeImprovement,
		PurposeMajorPurchase, PurposeSmallBusiness, PurposeOther:
	default:
		return fmt.Errorf("%w: unknown purpose %q", domain.ErrValidation, r.Purpose)
	}
	return nil
}

// Fingerprint returns a deterministic hash of the application fields.
// Two identical applications share a fingerprint, which the decision
// pipeline uses for idempotent decisioning.
func (a *Applicant) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"%.2f|%d|%.4f|%.2f|%.2f|%.4f|%d|%d|%.4f|%.1f|%s|%s",
		a.LoanAmount, a.TermMonths, a.InterestRate, a.Installment,
		a.AnnualIncome, a.DTI, a.FicoScore, a.Delinquencies,
		a.RevolvingUtil, a.EmploymentYrs, a.HomeOwnership, a.Purpose,
	)))
	return hex.EncodeToString(sum[:])
}
