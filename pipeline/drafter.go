package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/integrations/confluence"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// DocSearcher is the slice of the doc-search client the drafter needs.
type DocSearcher interface {
	Search(ctx context.Context, query string, limit int) *confluence.Result
}

// Drafter turns the raw feature request into a structured ticket draft,
// researching related internal documentation first.
type Drafter struct {
	baseStage
	docs DocSearcher
}

// NewDrafter creates the drafter stage.
func NewDrafter(cfg config.StageConfig, provider llm.Provider, docs DocSearcher, logger *zap.Logger) *Drafter {
	return &Drafter{
		baseStage: newBaseStage("Drafter", "Drafting requirements from the feature request", cfg, provider, logger),
		docs:      docs,
	}
}

func (d *Drafter) GateEligible() bool { return true }

type drafterOutput struct {
	Summary            string   `json:"summary"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Labels             []string `json:"labels"`
}

func (d *Drafter) Run(ctx context.Context, state *State) Outcome {
	started := time.Now()

	// one research call per attempt
	var docTitles []string
	if d.docs != nil {
		res := d.docs.Search(ctx, searchQuery(state.Request.UserRequest), 5)
		if !res.Success {
			out := d.failure(types.NewError(types.ErrExternalAPI, res.Error).
				WithDetails("documentation search failed"), started)
			return out
		}
		if results, ok := res.Result["results"].([]map[string]any); ok {
			for _, r := range results {
				if title, ok := r["title"].(string); ok {
					docTitles = append(docTitles, title)
				}
			}
		}
	}

	prompt, err := renderPrompt(drafterPrompt, map[string]any{
		"IssueType":   state.Request.IssueType,
		"UserRequest": state.Request.UserRequest,
		"Research":    strings.Join(docTitles, "\n"),
		"Feedback":    feedbackBlock(state.Feedback),
	})
	if err != nil {
		return d.failure(err, started)
	}

	text, err := d.complete(ctx, drafterSystem, prompt)
	if err != nil {
		return d.failure(err, started)
	}

	var out drafterOutput
	if err := decodeStageJSON(text, &out); err != nil {
		return d.failure(err, started)
	}
	if out.Summary == "" || out.Description == "" {
		return d.failure(types.NewError(types.ErrParse, "parse_error").
			WithDetails("draft missing summary or description"), started)
	}

	artifact := state.Artifact
	artifact.Summary = out.Summary
	artifact.Description = out.Description
	if len(out.AcceptanceCriteria) > 0 {
		artifact.Description += "\n\nAcceptance Criteria:\n"
		for _, ac := range out.AcceptanceCriteria {
			artifact.Description += "- " + ac + "\n"
		}
	}
	for _, l := range out.Labels {
		artifact.AddLabel(l)
	}

	score, failing := d.score(state.Request, out, len(docTitles) > 0)

	d.logger.Info("draft produced",
		zap.String("run_id", state.RunID),
		zap.Float64("score", score),
		zap.Int("documents", len(docTitles)),
	)

	return Outcome{
		Result: types.StageResult{
			StageName:    d.name,
			Success:      true,
			QualityScore: score,
			Payload: map[string]any{
				"summary":             out.Summary,
				"acceptance_criteria": out.AcceptanceCriteria,
				"labels":              out.Labels,
			},
			Duration: time.Since(started),
		},
		Artifact: &artifact,
		Research: map[string]any{"documents": docTitles},
		Feedback: describeFailing(d.name, failing),
	}
}

// score applies the drafter rubric: five dimensions at 0.2 each.
func (d *Drafter) score(req types.WorkflowRequest, out drafterOutput, hasResearch bool) (float64, []string) {
	storyFormatMet := hasStoryFormat(out.Description)
	if req.IssueType != types.IssueTypeStory {
		// only stories are held to the user story convention
		storyFormatMet = out.Summary != "" && out.Description != ""
	}

	return scoreDimensions([]dimension{
		{name: "clarity", weight: 0.2, met: len(out.Description) >= 40},
		{name: "story_format", weight: 0.2, met: storyFormatMet},
		{name: "acceptance_criteria", weight: 0.2, met: len(out.AcceptanceCriteria) >= 2},
		{name: "feasibility_signal", weight: 0.2, met: hasResearch || mentionsScope(out.Description)},
		{name: "business_value", weight: 0.2, met: hasBusinessValue(out.Description)},
	})
}

func mentionsScope(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"depend", "requires", "existing", "integrate", "scope"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// searchQuery trims the request to a short documentation query.
func searchQuery(userRequest string) string {
	words := strings.Fields(userRequest)
	if len(words) > 10 {
		words = words[:10]
	}
	return strings.Join(words, " ")
}
