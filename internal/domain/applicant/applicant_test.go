package applicant

import (
	"errors"
	"testing"

	"github.com/riskgate/riskgate/internal/domain"
)

func validRequest() CreateRequest {
	return CreateRequest{
		LoanAmount:    12000,
		TermMonths:    36,
		InterestRate:  11.5,
		Installment:   396.45,
		AnnualIncome:  65000,
		DTI:           18.2,
		FicoScore:     702,
		Delinquencies: 0,
		RevolvingUtil: 41.3,
		EmploymentYrs: 5,
		HomeOwnership: HomeMortgage,
		Purpose:       PurposeDebtConsolidation,
	}
}

func TestValidateAcceptsTypicalApplication(t *testing.T) {
	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"zero loan amount", func(r *CreateRequest) { r.LoanAmount = 0 }},
		{"odd term", func(r *CreateRequest) { r.TermMonths = 48 }},
		{"negative income", func(r *CreateRequest) { r.AnnualIncome = -1 }},
		{"fico too low", func(r *CreateRequest) { r.FicoScore = 250 }},
		{"fico too high", func(r *CreateRequest) { r.FicoScore = 900 }},
		{"unknown housing", func(r *CreateRequest) { r.HomeOwnership = "boat" }},
		{"unknown purpose", func(r *CreateRequest) { r.Purpose = "vacation" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Applicant{LoanAmount: 12000, TermMonths: 36, InterestRate: 11.5,
		FicoScore: 702, HomeOwnership: HomeRent, Purpose: PurposeCreditCard}
	b := a
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical applications must share a fingerprint")
	}

	b.LoanAmount = 12001
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("different applications must not share a fingerprint")
	}
}
