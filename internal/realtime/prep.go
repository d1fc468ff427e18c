package realtime

import (
	"time"

	"groupquiz-service/internal/domain"
)

// PreparationPatch is the partial state a manager merges into the shared
// preparation state. Pointer fields distinguish "absent" from zero values.
type PreparationPatch struct {
	Preset         *string                   `json:"preset,omitempty"`
	Distribution   map[domain.Difficulty]int `json:"distribution,omitempty"`
	Generating     *bool                     `json:"generating,omitempty"`
	QuestionsReady *bool                     `json:"questionsReady,omitempty"`
}

// ApplyPreparationUpdate merges a patch into the current preparation state as
// a tagged-union transition: each step has its own required fields, and a
// patch that does not satisfy them is rejected without touching the state.
func ApplyPreparationUpdate(cur domain.PreparationState, step domain.PreparationStep, patch PreparationPatch, updatedBy string, at time.Time) (domain.PreparationState, error) {
	switch step {
	case domain.StepPresetSelection:
		if patch.Preset == nil {
			return cur, domain.ErrMalformedUpdate
		}
	case domain.StepQuestionGeneration:
		if patch.Generating == nil && len(patch.Distribution) == 0 {
			return cur, domain.ErrMalformedUpdate
		}
	case domain.StepReadyToStart:
		if patch.QuestionsReady == nil || !*patch.QuestionsReady {
			return cur, domain.ErrMalformedUpdate
		}
	default:
		return cur, domain.ErrUnknownStep
	}

	next := cur
	next.Step = step
	if patch.Preset != nil {
		next.Preset = *patch.Preset
	}
	if len(patch.Distribution) > 0 {
		dist := make(map[domain.Difficulty]int, len(patch.Distribution))
		for difficulty, count := range patch.Distribution {
			dist[difficulty] = count
		}
		next.Distribution = dist
	}
	if patch.Generating != nil {
		next.Generating = *patch.Generating
	}
	if patch.QuestionsReady != nil {
		next.QuestionsReady = *patch.QuestionsReady
	}
	next.UpdatedBy = updatedBy
	next.UpdatedAt = at
	return next, nil
}
