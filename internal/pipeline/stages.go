package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/melodydashora/triad/internal/breaker"
	"github.com/melodydashora/triad/pkg/jsonextract"
	"github.com/melodydashora/triad/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed plan_schema.json
var planSchemaJSON string

var planSchema = mustCompileSchema(planSchemaJSON)

func mustCompileSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compiling plan schema: %v", err))
	}
	return s
}

const (
	minStrategyWords  = 50
	minReasoningWords = 15
)

// callStage runs one provider call under the stage's breaker and timeout.
// Returned errors are always *StageError.
func (o *Orchestrator) callStage(ctx context.Context, st Stage, prompt string, jsonMode bool) (models.GenerateResponse, int64, error) {
	stageCtx, cancel := context.WithTimeout(ctx, st.Config.Timeout)
	defer cancel()

	var resp models.GenerateResponse
	start := time.Now()
	err := st.Breaker.Execute(stageCtx, func(callCtx context.Context) error {
		var genErr error
		resp, genErr = st.Provider.Generate(callCtx, models.GenerateRequest{
			Prompt:          prompt,
			Effort:          st.Config.Effort,
			MaxOutputTokens: st.Config.MaxOutputTokens,
			JSONMode:        jsonMode,
		})
		return genErr
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		return models.GenerateResponse{}, durationMS, o.classify(ctx, st.Name, err)
	}
	return resp, durationMS, nil
}

// classify maps a raw stage failure onto the taxonomy. runCtx is the
// budget-scoped run context; if it expired, the run deadline takes precedence
// over the per-stage timeout.
func (o *Orchestrator) classify(runCtx context.Context, stage string, err error) error {
	kind := KindProviderError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		kind = KindDeadlineExceeded
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, breaker.ErrOpen):
		kind = KindCircuitOpen
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (o *Orchestrator) runStrategist(ctx context.Context, snap *models.Snapshot) (string, *models.StageResult, error) {
	resp, durationMS, err := o.callStage(ctx, o.strategist, buildStrategyPrompt(snap.Context), false)
	if err != nil {
		return "", nil, err
	}

	analysis := strings.TrimSpace(resp.Content)
	if words := len(strings.Fields(analysis)); words < minStrategyWords {
		return "", nil, &StageError{
			Stage: models.StageStrategist,
			Kind:  KindValidationError,
			Err:   fmt.Errorf("analysis too short: %d words, need %d+", words, minStrategyWords),
		}
	}

	payload, err := json.Marshal(models.Strategy{Analysis: analysis})
	if err != nil {
		return "", nil, &StageError{Stage: models.StageStrategist, Kind: KindValidationError, Err: err}
	}

	return analysis, o.stageResult(snap.ID, models.StageStrategist, o.strategist, resp, payload, durationMS), nil
}

func (o *Orchestrator) runPlanner(ctx context.Context, snap *models.Snapshot, strategy string) (json.RawMessage, *models.StageResult, error) {
	resp, durationMS, err := o.callStage(ctx, o.planner, buildPlanningPrompt(snap.Context, strategy), true)
	if err != nil {
		return nil, nil, err
	}

	plan, err := extractPlan(models.StagePlanner, resp.Content, false)
	if err != nil {
		return nil, nil, err
	}

	return plan, o.stageResult(snap.ID, models.StagePlanner, o.planner, resp, plan, durationMS), nil
}

func (o *Orchestrator) runValidator(ctx context.Context, snap *models.Snapshot, planJSON json.RawMessage) (json.RawMessage, *models.StageResult, error) {
	resp, durationMS, err := o.callStage(ctx, o.validator, buildValidationPrompt(planJSON), true)
	if err != nil {
		return nil, nil, err
	}

	// The validator's corrected plan must also satisfy the reasoning minimum.
	plan, err := extractPlan(models.StageValidator, resp.Content, true)
	if err != nil {
		return nil, nil, err
	}

	return plan, o.stageResult(snap.ID, models.StageValidator, o.validator, resp, plan, durationMS), nil
}

func (o *Orchestrator) stageResult(snapshotID uuid.UUID, stage string, st Stage, resp models.GenerateResponse, payload json.RawMessage, durationMS int64) *models.StageResult {
	model := resp.Model
	if model == "" {
		model = st.Config.Model
	}
	return &models.StageResult{
		ID:         uuid.New(),
		SnapshotID: snapshotID,
		Stage:      stage,
		Payload:    payload,
		Provider:   st.Provider.Name(),
		Model:      model,
		DurationMS: durationMS,
		CreatedAt:  time.Now().UTC(),
	}
}

// extractPlan pulls a JSON object out of raw model output and validates it
// against the plan schema. Providers wrap JSON in fences or prose often enough
// that extraction is part of the contract, not a workaround.
func extractPlan(stage, content string, checkReasoning bool) (json.RawMessage, error) {
	raw, err := jsonextract.Object(content)
	if err != nil {
		return nil, &StageError{Stage: stage, Kind: KindValidationError, Err: err}
	}
	if err := validatePlan(raw, checkReasoning); err != nil {
		return nil, &StageError{Stage: stage, Kind: KindValidationError, Err: err}
	}
	return raw, nil
}

func validatePlan(raw json.RawMessage, checkReasoning bool) error {
	result, err := planSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			msgs = append(msgs, field+": "+desc.Description())
		}
		return fmt.Errorf("plan schema violations: %s", strings.Join(msgs, "; "))
	}

	if !checkReasoning {
		return nil
	}

	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("decoding plan: %w", err)
	}
	for i, v := range plan.Venues {
		if words := len(strings.Fields(v.Reasoning)); words < minReasoningWords {
			return fmt.Errorf("venue %d (%s) reasoning too short: %d words, need %d+", i, v.Name, words, minReasoningWords)
		}
	}
	return nil
}
