// Package coachpatterns retrieves an athlete's historical coach workout
// templates and training phases and formats them for a prompt.
package coachpatterns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/internal/tokens"
	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// MaxCandidates caps the templates considered for formatting.
	MaxCandidates = 5
	// MaxPhases caps the phases appended after the workouts.
	MaxPhases = 3
	// MaxKeywords caps the keyword searches per query.
	MaxKeywords = 3

	// NoDataText is the layer text when the athlete has no coach history.
	NoDataText = "No coach workout patterns found for this athlete."

	workoutsHeader = "### Workouts\n"
	phasesHeader   = "### Phases\n"
)

// Step names the fallback step that produced the templates.
type Step string

const (
	StepNone          Step = "none"
	StepPhase         Step = "phase"
	StepCategory      Step = "category"
	StepKeyword       Step = "keyword"
	StepMostPerformed Step = "most_performed"
)

// Retriever builds the coach layer.
type Retriever struct {
	store db.CoachReader
}

// New creates a Retriever reading from store.
func New(store db.CoachReader) *Retriever {
	return &Retriever{store: store}
}

// Retrieve finds templates through the fallback chain phase, category,
// keywords, most performed, stopping at the first step that yields
// anything, and formats up to MaxCandidates of them plus up to MaxPhases
// phases within maxChars. Store failures fall through to the next step.
func (r *Retriever) Retrieve(ctx context.Context, athleteID, query string, filters models.CoachFilters, maxChars int) (models.CoachLayer, error) {
	var (
		templates []*models.CoachWorkoutTemplate
		phases    []*models.CoachPhase
		step      Step
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		templates, step, err = r.findTemplates(gctx, athleteID, query, filters)
		return err
	})
	g.Go(func() error {
		all, err := r.store.Phases(gctx, athleteID)
		if err != nil {
			if isCtxErr(err) {
				return err
			}
			log.Warn().Err(err).Str("athlete_id", athleteID).Msg("Coach phase read failed")
			return nil
		}
		phases = SelectPhases(all, filters.Phase, MaxPhases)
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.CoachLayer{}, err
	}

	if len(templates) > MaxCandidates {
		templates = templates[:MaxCandidates]
	}
	log.Debug().Str("athlete_id", athleteID).Str("step", string(step)).
		Int("templates", len(templates)).Int("phases", len(phases)).Msg("Coach patterns retrieved")

	return render(templates, phases, maxChars), nil
}

func (r *Retriever) findTemplates(ctx context.Context, athleteID, query string, filters models.CoachFilters) ([]*models.CoachWorkoutTemplate, Step, error) {
	try := func(step Step, fn func() ([]*models.CoachWorkoutTemplate, error)) ([]*models.CoachWorkoutTemplate, error) {
		found, err := fn()
		if err != nil {
			if isCtxErr(err) {
				return nil, err
			}
			log.Warn().Err(err).Str("athlete_id", athleteID).Str("step", string(step)).Msg("Coach template lookup failed")
			return nil, nil
		}
		return found, nil
	}

	if filters.Phase != "" {
		found, err := try(StepPhase, func() ([]*models.CoachWorkoutTemplate, error) {
			return r.store.TemplatesByPhase(ctx, athleteID, filters.Phase, MaxCandidates)
		})
		if err != nil || len(found) > 0 {
			return found, StepPhase, err
		}
	}

	category := filters.Category
	if category == "" {
		category = filters.WorkoutType
	}
	if category != "" {
		found, err := try(StepCategory, func() ([]*models.CoachWorkoutTemplate, error) {
			return r.store.TemplatesByCategory(ctx, athleteID, category, MaxCandidates)
		})
		if err != nil || len(found) > 0 {
			return found, StepCategory, err
		}
	}

	if keywords := ExtractKeywords(query, MaxKeywords); len(keywords) > 0 {
		var union []*models.CoachWorkoutTemplate
		seen := map[string]struct{}{}
		for _, kw := range keywords {
			found, err := try(StepKeyword, func() ([]*models.CoachWorkoutTemplate, error) {
				return r.store.SearchTemplatesByName(ctx, athleteID, kw, MaxCandidates)
			})
			if err != nil {
				return nil, StepKeyword, err
			}
			for _, t := range found {
				key := templateKey(t)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				union = append(union, t)
			}
		}
		if len(union) > 0 {
			return union, StepKeyword, nil
		}
	}

	found, err := try(StepMostPerformed, func() ([]*models.CoachWorkoutTemplate, error) {
		return r.store.MostPerformedTemplates(ctx, athleteID, MaxCandidates)
	})
	if err != nil {
		return nil, StepMostPerformed, err
	}
	if len(found) == 0 {
		log.Debug().Str("athlete_id", athleteID).Msg("No coach templates for athlete")
		return nil, StepNone, nil
	}
	return found, StepMostPerformed, nil
}

func templateKey(t *models.CoachWorkoutTemplate) string {
	if t.ID != 0 {
		return fmt.Sprintf("id:%d", t.ID)
	}
	return "name:" + strings.ToLower(t.Name)
}

// SelectPhases returns up to max phases, the one matching current by
// case-insensitive substring (in either direction) first.
func SelectPhases(phases []*models.CoachPhase, current string, max int) []*models.CoachPhase {
	out := make([]*models.CoachPhase, 0, max)
	matchIdx := -1
	if cur := strings.ToLower(strings.TrimSpace(current)); cur != "" {
		for i, p := range phases {
			name := strings.ToLower(p.Name)
			if name != "" && (strings.Contains(name, cur) || strings.Contains(cur, name)) {
				matchIdx = i
				out = append(out, p)
				break
			}
		}
	}
	for i, p := range phases {
		if len(out) >= max {
			break
		}
		if i != matchIdx {
			out = append(out, p)
		}
	}
	return out
}

func render(templates []*models.CoachWorkoutTemplate, phases []*models.CoachPhase, maxChars int) models.CoachLayer {
	layer := models.CoachLayer{WorkoutsIncluded: []string{}, PhasesIncluded: []string{}}
	if len(templates) == 0 && len(phases) == 0 {
		layer.Text = NoDataText
		layer.TokenCount = tokens.Estimate(layer.Text)
		return layer
	}

	var b strings.Builder
	if len(templates) > 0 {
		entries := make([]string, len(templates))
		for i, t := range templates {
			entries[i] = FormatTemplate(t)
		}
		limit := budget.Remaining(maxChars, len(workoutsHeader))
		packed, _ := budget.Pack(entries, limit, entryLen, true)
		b.WriteString(workoutsHeader)
		seen := map[string]struct{}{}
		for i, e := range packed {
			b.WriteString(e)
			name := templates[i].Name
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				layer.WorkoutsIncluded = append(layer.WorkoutsIncluded, name)
			}
		}
	}

	if len(phases) > 0 {
		entries := make([]string, len(phases))
		for i, p := range phases {
			entries[i] = FormatPhase(p)
		}
		limit := budget.Remaining(maxChars, b.Len()+len(phasesHeader))
		packed, _ := budget.Pack(entries, limit, entryLen, false)
		if len(packed) > 0 {
			b.WriteString(phasesHeader)
			for i, e := range packed {
				b.WriteString(e)
				layer.PhasesIncluded = append(layer.PhasesIncluded, phases[i].Name)
			}
		}
	}

	layer.Text = strings.TrimRight(b.String(), "\n")
	if layer.Text == "" {
		layer.Text = NoDataText
	}
	layer.TokenCount = tokens.Estimate(layer.Text)
	return layer
}

func entryLen(s string) int { return len(s) }

// FormatTemplate renders one template. Empty fields are left out.
func FormatTemplate(t *models.CoachWorkoutTemplate) string {
	var b strings.Builder
	b.WriteString("**" + t.Name + "**")
	if t.Category != "" {
		b.WriteString(" (" + t.Category + ")")
	}
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString(t.Description + "\n")
	}

	var typical []string
	if t.TypicalDistanceKm > 0 {
		typical = append(typical, fmt.Sprintf("%.1f km", t.TypicalDistanceKm))
	}
	if t.TypicalDurationMin > 0 {
		typical = append(typical, fmt.Sprintf("%d min", t.TypicalDurationMin))
	}
	if t.TargetZone != "" {
		typical = append(typical, "zone "+t.TargetZone)
	}
	if t.TargetPace != "" {
		typical = append(typical, "pace "+t.TargetPace)
	}
	if len(typical) > 0 {
		b.WriteString("Typical: " + strings.Join(typical, ", ") + "\n")
	}

	for _, f := range []struct{ label, value string }{
		{"Coaching notes", t.CoachingNotes},
		{"When to use", t.WhenToUse},
		{"When to avoid", t.WhenToAvoid},
		{"Recovery needed", t.RecoveryNeeded},
	} {
		if f.value != "" {
			b.WriteString(f.label + ": " + f.value + "\n")
		}
	}

	if t.TimesPerformed > 0 {
		fmt.Fprintf(&b, "Performed %d times", t.TimesPerformed)
		if t.AvgFeeling > 0 {
			fmt.Fprintf(&b, ", avg feeling %.1f/10", t.AvgFeeling)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// FormatPhase renders one phase. Empty fields are left out.
func FormatPhase(p *models.CoachPhase) string {
	var b strings.Builder
	b.WriteString("**" + p.Name + "**")
	var meta []string
	if p.TypicalWeeks > 0 {
		meta = append(meta, fmt.Sprintf("%d weeks", p.TypicalWeeks))
	}
	if p.WeeklyVolumeKm > 0 {
		meta = append(meta, fmt.Sprintf("%.0f km/week", p.WeeklyVolumeKm))
	}
	if len(meta) > 0 {
		b.WriteString(" (" + strings.Join(meta, ", ") + ")")
	}
	b.WriteString("\n")
	if p.Description != "" {
		b.WriteString(p.Description + "\n")
	}
	if len(p.KeyWorkouts) > 0 {
		b.WriteString("Key workouts: " + strings.Join(p.KeyWorkouts, ", ") + "\n")
	}
	if p.Notes != "" {
		b.WriteString("Notes: " + p.Notes + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
