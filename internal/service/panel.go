package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/riskgate/riskgate/internal/adapter/llm"
	otelx "github.com/riskgate/riskgate/internal/adapter/otel"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/domain/applicant"
	"github.com/riskgate/riskgate/internal/domain/decision"
)

// personas are the reasoning stances assigned to panel agents. When the
// configured panel size exceeds the list, stances repeat.
var personas = []struct {
	name   string
	stance string
}{
	{"prudent", "You are a conservative credit underwriter. Weigh repayment risk heavily and flag any sign of overextension."},
	{"balanced", "You are a pragmatic credit analyst. Weigh risk against the applicant's capacity and credit history evenly."},
	{"contrarian", "You are a second-look reviewer. Challenge the obvious reading of the application and look for mitigating or aggravating factors the numbers hide."},
}

// PanelUsage accumulates token and key accounting for one panel run.
type PanelUsage struct {
	TokensIn    int64
	TokensOut   int64
	KeySwitches int
	ActiveKey   int
	Model       string
}

// Panel fans an escalated application out to N reasoning agents and
// collects their verdicts. Agents that fail or return unparseable output
// abstain; they never sink the whole panel.
type Panel struct {
	client  *llm.Client
	llmCfg  config.LLM
	size    int
	timeout time.Duration
}

// NewPanel creates a reasoning panel over the given LLM client.
func NewPanel(client *llm.Client, llmCfg config.LLM, size int, timeout time.Duration) *Panel {
	if size <= 0 {
		size = 3
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Panel{client: client, llmCfg: llmCfg, size: size, timeout: timeout}
}

// Assess runs all panel agents concurrently and returns their verdicts.
// The returned slice holds only the agents that produced a valid verdict.
func (p *Panel) Assess(ctx context.Context, a *applicant.Applicant, prob float64) ([]decision.AgentVerdict, PanelUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	usage := PanelUsage{Model: p.llmCfg.Model}
	switchesBefore := p.client.KeySwitches()

	var mu sync.Mutex
	verdicts := make([]decision.AgentVerdict, 0, p.size)

	g, ctx := errgroup.WithContext(ctx)
	for i := range p.size {
		persona := personas[i%len(personas)]
		agentName := persona.name
		if i >= len(personas) {
			agentName = fmt.Sprintf("%s-%d", persona.name, i/len(personas)+1)
		}
		stance := persona.stance

		g.Go(func() error {
			ctx, span := otelx.StartAgentSpan(ctx, agentName)
			defer span.End()

			resp, err := p.client.ChatCompletion(ctx, llm.ChatCompletionRequest{
				Model: p.llmCfg.Model,
				Messages: []llm.ChatMessage{
					{Role: "system", Content: stance},
					{Role: "user", Content: buildPrompt(a, prob)},
				},
				Temperature: p.llmCfg.Temperature,
				MaxTokens:   p.llmCfg.MaxTokens,
			})
			if err != nil {
				slog.Warn("panel agent call failed", "agent", agentName, "error", err)
				return nil // abstain
			}

			mu.Lock()
			usage.TokensIn += resp.PromptTokens
			usage.TokensOut += resp.CompletionTokens
			mu.Unlock()

			v, err := parseVerdict(agentName, resp.Content)
			if err != nil {
				slog.Warn("panel agent returned unparseable verdict",
					"agent", agentName,
					"error", err,
					"content", truncate(resp.Content, 200),
				)
				return nil // abstain
			}

			mu.Lock()
			verdicts = append(verdicts, v)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, usage, err
	}

	usage.KeySwitches = int(p.client.KeySwitches() - switchesBefore)
	usage.ActiveKey = p.client.ActiveKeyIndex()
	return verdicts, usage, nil
}

// Size returns the configured number of panel agents.
func (p *Panel) Size() int { return p.size }

// buildPrompt renders the application and the model's probability into
// the assessment prompt.
func buildPrompt(a *applicant.Applicant, prob float64) string {
	return fmt.Sprintf(`Assess this loan application for default risk.

Application:
- loan amount: $%.2f over %d months at %.2f%% (installment $%.2f)
- annual income: $%.2f, debt-to-income ratio: %.1f
- FICO score: %d, delinquencies in last 2 years: %d
- revolving utilization: %.1f%%, years employed: %.1f
- home ownership: %s, loan purpose: %s

A gradient-boosted model estimates the default probability at %.3f but
is not confident enough to decide alone.

Reply with JSON only, no prose:
{"outcome": "approve" | "deny" | "review", "risk_score": <integer 0-100>, "rationale": "<one sentence>"}`,
		a.LoanAmount, a.TermMonths, a.InterestRate, a.Installment,
		a.AnnualIncome, a.DTI, a.FicoScore, a.Delinquencies,
		a.RevolvingUtil, a.EmploymentYrs, a.HomeOwnership, a.Purpose,
		prob)
}

// parseVerdict extracts and validates an agent's JSON verdict.
func parseVerdict(agent, content string) (decision.AgentVerdict, error) {
	var raw struct {
		Outcome   string `json:"outcome"`
		RiskScore int    `json:"risk_score"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return decision.AgentVerdict{}, fmt.Errorf("unmarshal verdict: %w", err)
	}

	outcome := decision.Outcome(raw.Outcome)
	switch outcome {
	case decision.OutcomeApprove, decision.OutcomeDeny, decision.OutcomeReview:
	default:
		return decision.AgentVerdict{}, fmt.Errorf("unknown outcome %q", raw.Outcome)
	}

	if raw.RiskScore < 0 {
		raw.RiskScore = 0
	}
	if raw.RiskScore > 100 {
		raw.RiskScore = 100
	}

	return decision.AgentVerdict{
		Agent:     agent,
		Outcome:   outcome,
		RiskScore: raw.RiskScore,
		Rationale: raw.Rationale,
	}, nil
}

// AggregateVerdicts reduces panel verdicts to a single outcome by
// majority vote. Ties and an empty panel both land in manual review.
// The returned risk score is the mean of the verdicts' scores.
func AggregateVerdicts(verdicts []decision.AgentVerdict) (decision.Outcome, int) {
	if len(verdicts) == 0 {
		return decision.OutcomeReview, 50
	}

	votes := make(map[decision.Outcome]int)
	var riskTotal int
	for _, v := range verdicts {
		votes[v.Outcome]++
		riskTotal += v.RiskScore
	}

	best := decision.OutcomeReview
	bestCount := 0
	tie := false
	for _, o := range []decision.Outcome{decision.OutcomeApprove, decision.OutcomeDeny, decision.OutcomeReview} {
		switch {
		case votes[o] > bestCount:
			best, bestCount, tie = o, votes[o], false
		case votes[o] == bestCount && votes[o] > 0 && o != best:
			tie = true
		}
	}
	if tie {
		best = decision.OutcomeReview
	}

	return best, riskTotal / len(verdicts)
}
