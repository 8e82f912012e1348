package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/types"
)

// Outcome is what a stage hands back to the orchestrator: the attempt's
// result, the updated artifact when the stage enriched it, and the failing
// rubric dimensions used as feedback on retry.
type Outcome struct {
	Result   types.StageResult
	Artifact *types.TicketArtifact
	Research map[string]any
	Feedback []string
}

// Stage is one processor in the fixed pipeline order. Implementations must
// not mutate the state they receive.
type Stage interface {
	Name() string
	// Activity is the human-readable text shown on the dashboard while the
	// stage runs.
	Activity() string
	// GateEligible reports whether the quality gate applies; the creator
	// stage is exempt because its outcome is a side effect, not a draft.
	GateEligible() bool
	Run(ctx context.Context, state *State) Outcome
}

// baseStage carries what every processor shares: the model client, the
// stage's model parameters, and a tagged logger.
type baseStage struct {
	name     string
	activity string
	cfg      config.StageConfig
	provider llm.Provider
	logger   *zap.Logger
}

func newBaseStage(name, activity string, cfg config.StageConfig, provider llm.Provider, logger *zap.Logger) baseStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseStage{
		name:     name,
		activity: activity,
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(zap.String("stage", name)),
	}
}

func (b *baseStage) Name() string     { return b.name }
func (b *baseStage) Activity() string { return b.activity }

// complete issues the stage's model call with its configured parameters.
func (b *baseStage) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := b.provider.Complete(ctx, llm.CompletionRequest{
		Model:       b.cfg.Model,
		System:      system,
		Prompt:      prompt,
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
		Timeout:     b.cfg.Timeout,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// failure builds a failed attempt result from a model or parse error.
func (b *baseStage) failure(err error, started time.Time) Outcome {
	var terr *types.Error
	if e, ok := err.(*types.Error); ok {
		terr = e
	} else {
		terr = types.NewError(types.ErrStageProcessor, err.Error()).WithCause(err)
	}
	return Outcome{Result: types.StageResult{
		StageName: b.name,
		Success:   false,
		Duration:  time.Since(started),
		Error:     terr,
	}}
}

// decodeStageJSON parses a model reply that is expected to be a single JSON
// object, tolerating markdown code fences around it.
func decodeStageJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return types.NewError(types.ErrParse, "parse_error").WithCause(err)
	}
	return nil
}

// feedbackBlock renders prior-attempt feedback for inclusion in a retry
// prompt. Empty when this is the first attempt.
func feedbackBlock(feedback []string) string {
	if len(feedback) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nThe previous attempt scored low on these dimensions; address them explicitly:\n")
	for _, f := range feedback {
		sb.WriteString("- ")
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return sb.String()
}
