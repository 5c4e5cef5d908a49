package scoring

import "github.com/riskgate/riskgate/internal/domain/applicant"

// Feature column layout. One-hot blocks follow the numeric block; the
// order here must match Vectorize.
var featureNames = []string{
	"loan_amount",
	"term_months",
	"interest_rate",
	"installment",
	"annual_income",
	"dti",
	"fico_score",
	"delinquencies_2y",
	"revolving_util",
	"employment_years",
	"home_rent",
	"home_own",
	"home_mortgage",
	"home_other",
	"purpose_debt_consolidation",
	"purpose_credit_card",
	"purpose_home_improvement",
	"purpose_major_purchase",
	"purpose_small_business",
	"purpose_other",
}

// FeatureNames returns the column names of a vectorized row.
func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// NumFeatures is the width of a vectorized row.
func NumFeatures() int { return len(featureNames) }

// Vectorize converts an applicant into a feature row in featureNames order.
func Vectorize(a *applicant.Applicant) []float64 {
	x := make([]float64, len(featureNames))
	x[0] = a.LoanAmount
	x[1] = float64(a.TermMonths)
	x[2] = a.InterestRate
	x[3] = a.Installment
	x[4] = a.AnnualIncome
	x[5] = a.DTI
	x[6] = float64(a.FicoScore)
	x[7] = float64(a.Delinquencies)
	x[8] = a.RevolvingUtil
	x[9] = a.EmploymentYrs

	switch a.HomeOwnership {
	case applicant.HomeRent:
		x[10] = 1
	case applicant.HomeOwn:
		x[11] = 1
	case applicant.HomeMortgage:
		x[12] = 1
	default:
		x[13] = 1
	}

	switch a.Purpose {
	case applicant.PurposeDebtConsolidation:
		x[14] = 1
	case applicant.PurposeCreditCard:
		x[15] = 1
	case applicant.PurposeHomeImprovement:
		x[16] = 1
	case applicant.PurposeMajorPurchase:
		x[17] = 1
	case applicant.PurposeSmallBusiness:
		x[18] = 1
	default:
		x[19] = 1
	}
	return x
}

// ProxyFeatureIndices returns the columns the fairness stage neutralizes:
// annual income and the home ownership block, which correlate with
// protected attributes without being underwriting-essential near the
// decision boundary.
func ProxyFeatureIndices() []int {
	return []int{4, 10, 11, 12, 13}
}
