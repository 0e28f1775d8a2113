// Package testspec produces executable test definitions for a failure
// cycle: one reproduction test proving the defect, plus one validation
// test per recommendation. Running them is an external runner's job.
package testspec

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/logging"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// DefaultEnvironment is recorded on every generated spec; the runner maps
// it to a concrete browser profile.
const DefaultEnvironment = "headless-chromium"

// reproDefinition is the structured body of a reproduction test.
type reproDefinition struct {
	Kind           string `json:"kind"`
	PageURL        string `json:"page_url"`
	FailedAction   string `json:"failed_action,omitempty"`
	FailedSelector string `json:"failed_selector,omitempty"`
	StepNumber     int    `json:"step_number,omitempty"`
	ExpectedError  string `json:"expected_error,omitempty"`
	Recipe         string `json:"recipe,omitempty"`
}

// validationDefinition is the structured body of a validation test.
type validationDefinition struct {
	Kind               string `json:"kind"`
	RecommendationID   int64  `json:"recommendation_id"`
	TargetComponent    string `json:"target_component"`
	ValidationCriteria string `json:"validation_criteria"`
	TestRequirements   string `json:"test_requirements,omitempty"`
}

// Generator builds and persists test specs.
type Generator struct {
	store  store.Store
	logger *slog.Logger
}

// New builds a Generator over the store.
func New(st store.Store) *Generator {
	return &Generator{store: st, logger: logging.New("testspec")}
}

// Generate emits exactly one reproduction test replaying the captured page
// URL and failed action (expected to fail while the defect stands), and one
// validation test per recommendation asserting its validation criteria
// (expected to pass once implemented). A failure building or saving one
// spec is logged and skips only that spec.
func (g *Generator) Generate(sc *failure.FailureScenario, ctx *failure.FailureContext, recs []*failure.Recommendation) []*failure.ReproductionTest {
	var out []*failure.ReproductionTest

	repro, err := g.reproduction(sc, ctx)
	if err != nil {
		g.logger.Warn("reproduction test skipped", "scenario", sc.ID, "error", err)
	} else {
		out = append(out, repro)
	}

	for _, r := range recs {
		v, err := g.validation(sc, r)
		if err != nil {
			g.logger.Warn("validation test skipped",
				"scenario", sc.ID, "recommendation", r.ID, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (g *Generator) reproduction(sc *failure.FailureScenario, ctx *failure.FailureContext) (*failure.ReproductionTest, error) {
	def := reproDefinition{
		Kind:           "replay",
		PageURL:        sc.PageURL,
		FailedAction:   sc.FailedAction,
		FailedSelector: sc.FailedSelector,
		StepNumber:     sc.StepNumber,
		ExpectedError:  sc.ErrorMessage,
	}
	if ctx != nil {
		def.Recipe = ctx.ReproductionRecipe
	}
	body, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal reproduction definition: %w", err)
	}
	t := &failure.ReproductionTest{
		ScenarioID:      sc.ID,
		Type:            failure.TestReproduction,
		Definition:      string(body),
		Environment:     DefaultEnvironment,
		ExpectedOutcome: failure.OutcomeFail,
	}
	id, err := g.store.SaveTest(t)
	if err != nil {
		return nil, fmt.Errorf("save reproduction test: %w", err)
	}
	t.ID = id
	return t, nil
}

func (g *Generator) validation(sc *failure.FailureScenario, r *failure.Recommendation) (*failure.ReproductionTest, error) {
	body, err := json.Marshal(validationDefinition{
		Kind:               "validate",
		RecommendationID:   r.ID,
		TargetComponent:    r.TargetComponent,
		ValidationCriteria: r.ValidationCriteria,
		TestRequirements:   r.TestRequirements,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal validation definition: %w", err)
	}
	t := &failure.ReproductionTest{
		ScenarioID:       sc.ID,
		RecommendationID: r.ID,
		Type:             failure.TestValidation,
		Definition:       string(body),
		Environment:      DefaultEnvironment,
		ExpectedOutcome:  failure.OutcomePass,
	}
	id, err := g.store.SaveTest(t)
	if err != nil {
		return nil, fmt.Errorf("save validation test: %w", err)
	}
	t.ID = id
	return t, nil
}
