package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/internship-placement-api/internal/models"
	"github.com/noah-isme/internship-placement-api/pkg/config"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

// ScoreModel validates component lists against a fixed rubric. It holds no mutable
// state and is safe for concurrent use.
type ScoreModel struct {
	sections []config.RubricSection
	slots    map[string]slotPosition
	max      float64
}

type slotPosition struct {
	section int
	cap     float64
}

// NewScoreModel builds a model from rubric sections. Slot names must be unique
// across sections and every cap must be positive and finite.
func NewScoreModel(sections []config.RubricSection) (*ScoreModel, error) {
	if len(sections) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rubric needs at least one section")
	}
	m := &ScoreModel{sections: make([]config.RubricSection, len(sections)), slots: make(map[string]slotPosition)}
	for i, section := range sections {
		if len(section.Slots) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric section %q has no slots", section.Name))
		}
		m.sections[i] = config.RubricSection{Name: section.Name, Slots: append([]config.RubricSlot(nil), section.Slots...)}
		for _, slot := range section.Slots {
			if slot.MaxValue <= 0 || math.IsInf(slot.MaxValue, 0) || math.IsNaN(slot.MaxValue) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric slot %q needs a positive cap", slot.Name))
			}
			if _, dup := m.slots[slot.Name]; dup {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric slot %q declared twice", slot.Name))
			}
			m.slots[slot.Name] = slotPosition{section: i, cap: slot.MaxValue}
			m.max += slot.MaxValue
		}
	}
	return m, nil
}

// Max is the grand cap of the rubric.
func (m *ScoreModel) Max() float64 {
	return m.max
}

// Sections returns a copy of the rubric layout.
func (m *ScoreModel) Sections() []config.RubricSection {
	out := make([]config.RubricSection, len(m.sections))
	for i, s := range m.sections {
		out[i] = config.RubricSection{Name: s.Name, Slots: append([]config.RubricSlot(nil), s.Slots...)}
	}
	return out
}

// Validate checks every rubric slot is scored exactly once within its cap and returns
// the totals. Components are returned in rubric order with their caps filled in.
// A zero MaxValue on input means "use the rubric cap".
func (m *ScoreModel) Validate(components []models.ScoreComponent) (models.ScoreBreakdown, error) {
	values := make(map[string]float64, len(components))
	for _, c := range components {
		pos, known := m.slots[c.Name]
		if !known {
			return models.ScoreBreakdown{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown rubric slot %q", c.Name))
		}
		if _, dup := values[c.Name]; dup {
			return models.ScoreBreakdown{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric slot %q scored twice", c.Name))
		}
		if c.MaxValue != 0 && c.MaxValue != pos.cap {
			return models.ScoreBreakdown{}, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("rubric slot %q is capped at %g, not %g", c.Name, pos.cap, c.MaxValue))
		}
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) || c.Value < 0 || c.Value > pos.cap {
			return models.ScoreBreakdown{}, appErrors.Clone(appErrors.ErrOutOfRange,
				fmt.Sprintf("rubric slot %q must be within [0, %g]", c.Name, pos.cap))
		}
		values[c.Name] = c.Value
	}
	if len(values) != len(m.slots) {
		for _, section := range m.sections {
			for _, slot := range section.Slots {
				if _, ok := values[slot.Name]; !ok {
					return models.ScoreBreakdown{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rubric slot %q not scored", slot.Name))
				}
			}
		}
	}

	breakdown := models.ScoreBreakdown{
		Components: make([]models.ScoreComponent, 0, len(m.slots)),
		Sections:   make([]models.SectionScore, 0, len(m.sections)),
		Max:        m.max,
	}
	for _, section := range m.sections {
		subtotal := models.SectionScore{Name: section.Name}
		for _, slot := range section.Slots {
			v := values[slot.Name]
			breakdown.Components = append(breakdown.Components, models.ScoreComponent{Name: slot.Name, Value: v, MaxValue: slot.MaxValue})
			subtotal.Total += v
			subtotal.Max += slot.MaxValue
		}
		breakdown.Total += subtotal.Total
		breakdown.Sections = append(breakdown.Sections, subtotal)
	}
	return breakdown, nil
}

func roundScore(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
