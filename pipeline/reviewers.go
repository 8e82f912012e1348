package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/integrations/jira"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// TicketSearcher is the slice of the tracker client the feasibility
// reviewer needs.
type TicketSearcher interface {
	GetTickets(ctx context.Context, jql string, maxResults int) *jira.Result
}

// =============================================================================
// Feasibility reviewer
// =============================================================================

// Feasibility reviews the draft against existing work and effort.
type Feasibility struct {
	baseStage
	tracker TicketSearcher
}

// NewFeasibility creates the feasibility review stage.
func NewFeasibility(cfg config.StageConfig, provider llm.Provider, tracker TicketSearcher, logger *zap.Logger) *Feasibility {
	return &Feasibility{
		baseStage: newBaseStage("Feasibility", "Reviewing feasibility against existing work", cfg, provider, logger),
		tracker:   tracker,
	}
}

func (f *Feasibility) GateEligible() bool { return true }

type feasibilityOutput struct {
	Feasible       *bool    `json:"feasible"`
	EffortEstimate string   `json:"effort_estimate"`
	Risks          []string `json:"risks"`
	Dependencies   []string `json:"dependencies"`
	Notes          string   `json:"notes"`
}

func (f *Feasibility) Run(ctx context.Context, state *State) Outcome {
	started := time.Now()

	// one similar-work lookup per attempt
	var similar []string
	if f.tracker != nil {
		jql := `summary ~ "` + strings.ReplaceAll(state.Artifact.Summary, `"`, "") + `"`
		res := f.tracker.GetTickets(ctx, jql, 5)
		if !res.Success {
			return f.failure(types.NewError(types.ErrExternalAPI, res.Error).
				WithDetails("similar ticket lookup failed"), started)
		}
		if tickets, ok := res.Result["tickets"].([]map[string]any); ok {
			for _, tk := range tickets {
				if key, ok := tk["key"].(string); ok {
					summary, _ := tk["summary"].(string)
					similar = append(similar, key+": "+summary)
				}
			}
		}
	}

	prompt, err := renderPrompt(feasibilityPrompt, map[string]any{
		"Summary":        state.Artifact.Summary,
		"Description":    state.Artifact.Description,
		"SimilarTickets": strings.Join(similar, "\n"),
		"Feedback":       feedbackBlock(state.Feedback),
	})
	if err != nil {
		return f.failure(err, started)
	}

	text, err := f.complete(ctx, reviewerSystem, prompt)
	if err != nil {
		return f.failure(err, started)
	}

	var out feasibilityOutput
	if err := decodeStageJSON(text, &out); err != nil {
		return f.failure(err, started)
	}

	artifact := state.Artifact
	if out.Notes != "" {
		artifact.Description += "\n\nFeasibility Review (effort " + orUnknown(out.EffortEstimate) + "):\n" + out.Notes
	}
	for _, risk := range out.Risks {
		artifact.Description += "\n- Risk: " + risk
	}

	score, failing := scoreDimensions([]dimension{
		{name: "verdict", weight: 0.2, met: out.Feasible != nil},
		{name: "effort_estimate", weight: 0.2, met: validEffort(out.EffortEstimate)},
		{name: "risks_identified", weight: 0.2, met: len(out.Risks) >= 1},
		{name: "dependencies_considered", weight: 0.2, met: out.Dependencies != nil},
		{name: "review_notes", weight: 0.2, met: out.Notes != ""},
	})

	f.logger.Info("feasibility reviewed",
		zap.String("run_id", state.RunID),
		zap.Float64("score", score),
		zap.Int("similar_tickets", len(similar)),
	)

	return Outcome{
		Result: types.StageResult{
			StageName:    f.name,
			Success:      true,
			QualityScore: score,
			Payload: map[string]any{
				"effort_estimate": out.EffortEstimate,
				"risks":           out.Risks,
				"dependencies":    out.Dependencies,
			},
			Duration: time.Since(started),
		},
		Artifact: &artifact,
		Research: map[string]any{"similar_tickets": similar},
		Feedback: describeFailing(f.name, failing),
	}
}

func validEffort(estimate string) bool {
	switch strings.ToUpper(strings.TrimSpace(estimate)) {
	case "S", "M", "L", "XL":
		return true
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// =============================================================================
// Testability reviewer
// =============================================================================

// Testability reviews whether the draft can be verified.
type Testability struct {
	baseStage
}

// NewTestability creates the testability review stage.
func NewTestability(cfg config.StageConfig, provider llm.Provider, logger *zap.Logger) *Testability {
	return &Testability{
		baseStage: newBaseStage("Testability", "Reviewing testability of the draft", cfg, provider, logger),
	}
}

func (t *Testability) GateEligible() bool { return true }

type testabilityOutput struct {
	Testable      *bool    `json:"testable"`
	TestScenarios []string `json:"test_scenarios"`
	CoverageNotes string   `json:"coverage_notes"`
}

func (t *Testability) Run(ctx context.Context, state *State) Outcome {
	started := time.Now()

	prompt, err := renderPrompt(testabilityPrompt, map[string]any{
		"Summary":     state.Artifact.Summary,
		"Description": state.Artifact.Description,
		"Feedback":    feedbackBlock(state.Feedback),
	})
	if err != nil {
		return t.failure(err, started)
	}

	text, err := t.complete(ctx, reviewerSystem, prompt)
	if err != nil {
		return t.failure(err, started)
	}

	var out testabilityOutput
	if err := decodeStageJSON(text, &out); err != nil {
		return t.failure(err, started)
	}

	artifact := state.Artifact
	if len(out.TestScenarios) > 0 {
		artifact.Description += "\n\nTest Scenarios:\n"
		for _, sc := range out.TestScenarios {
			artifact.Description += "- " + sc + "\n"
		}
	}

	gherkin := len(out.TestScenarios) > 0
	for _, sc := range out.TestScenarios {
		if !hasGherkinShape(sc) {
			gherkin = false
			break
		}
	}

	score, failing := scoreDimensions([]dimension{
		{name: "verdict", weight: 0.2, met: out.Testable != nil},
		{name: "scenarios_present", weight: 0.3, met: len(out.TestScenarios) >= 3},
		{name: "gherkin_format", weight: 0.3, met: gherkin},
		{name: "coverage_notes", weight: 0.2, met: out.CoverageNotes != ""},
	})

	t.logger.Info("testability reviewed",
		zap.String("run_id", state.RunID),
		zap.Float64("score", score),
		zap.Int("scenarios", len(out.TestScenarios)),
	)

	return Outcome{
		Result: types.StageResult{
			StageName:    t.name,
			Success:      true,
			QualityScore: score,
			Payload: map[string]any{
				"test_scenarios": out.TestScenarios,
				"coverage_notes": out.CoverageNotes,
			},
			Duration: time.Since(started),
		},
		Artifact: &artifact,
		Feedback: describeFailing(t.name, failing),
	}
}

// =============================================================================
// Compliance checker
// =============================================================================

// Compliance checks the draft against delivery policy before creation.
type Compliance struct {
	baseStage
}

// NewCompliance creates the compliance check stage.
func NewCompliance(cfg config.StageConfig, provider llm.Provider, logger *zap.Logger) *Compliance {
	return &Compliance{
		baseStage: newBaseStage("Compliance", "Checking the draft against delivery policy", cfg, provider, logger),
	}
}

func (c *Compliance) GateEligible() bool { return true }

type complianceOutput struct {
	Compliant      *bool    `json:"compliant"`
	Violations     []string `json:"violations"`
	RequiredLabels []string `json:"required_labels"`
}

func (c *Compliance) Run(ctx context.Context, state *State) Outcome {
	started := time.Now()

	prompt, err := renderPrompt(compliancePrompt, map[string]any{
		"Summary":     state.Artifact.Summary,
		"Description": state.Artifact.Description,
		"Labels":      strings.Join(state.Artifact.Labels, ", "),
		"Feedback":    feedbackBlock(state.Feedback),
	})
	if err != nil {
		return c.failure(err, started)
	}

	text, err := c.complete(ctx, reviewerSystem, prompt)
	if err != nil {
		return c.failure(err, started)
	}

	var out complianceOutput
	if err := decodeStageJSON(text, &out); err != nil {
		return c.failure(err, started)
	}

	artifact := state.Artifact
	for _, l := range out.RequiredLabels {
		artifact.AddLabel(l)
	}

	score, failing := scoreDimensions([]dimension{
		{name: "verdict", weight: 0.25, met: out.Compliant != nil},
		{name: "no_violations", weight: 0.35, met: len(out.Violations) == 0},
		{name: "labels_reviewed", weight: 0.2, met: out.RequiredLabels != nil},
		{name: "artifact_complete", weight: 0.2, met: artifact.Complete()},
	})

	c.logger.Info("compliance checked",
		zap.String("run_id", state.RunID),
		zap.Float64("score", score),
		zap.Int("violations", len(out.Violations)),
	)

	return Outcome{
		Result: types.StageResult{
			StageName:    c.name,
			Success:      true,
			QualityScore: score,
			Payload: map[string]any{
				"violations":      out.Violations,
				"required_labels": out.RequiredLabels,
			},
			Duration: time.Since(started),
		},
		Artifact: &artifact,
		Feedback: describeFailing(c.name, failing),
	}
}
