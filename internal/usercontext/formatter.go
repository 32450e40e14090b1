// Package usercontext formats an athlete's profile, recent training, active
// plan and latest check-in into the athlete-data layer of a prompt.
package usercontext

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/internal/fatigue"
	"github.com/thebtf/coachctx/internal/tokens"
	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// DefaultWindowDays is how far back activities and feedback are read.
	DefaultWindowDays = 14

	// DefaultMaxActivities caps the activity read.
	DefaultMaxActivities = 30

	// planReserve and checkInReserve are the minimum remaining characters
	// before the plan and check-in sections are attempted.
	planReserve    = 300
	checkInReserve = 150

	// NoDataText is the layer text when nothing is known about the athlete.
	NoDataText = "No athlete data available."
)

// Formatter builds the user layer.
type Formatter struct {
	store         db.AthleteReader
	now           func() time.Time
	windowDays    int
	maxActivities int
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithWindowDays sets the activity and feedback window.
func WithWindowDays(days int) Option {
	return func(f *Formatter) {
		if days > 0 {
			f.windowDays = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

// New creates a Formatter reading from store.
func New(store db.AthleteReader, opts ...Option) *Formatter {
	f := &Formatter{
		store:         store,
		now:           time.Now,
		windowDays:    DefaultWindowDays,
		maxActivities: DefaultMaxActivities,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// snapshot is everything read for one athlete.
type snapshot struct {
	profile  *models.AthleteProfile
	plan     *models.TrainingPlan
	checkIn  *models.WeeklyCheckIn
	runs     []*models.Run
	feedback []*models.Feedback
}

func (s *snapshot) empty() bool {
	return s.profile == nil && s.plan == nil && s.checkIn == nil && len(s.runs) == 0 && len(s.feedback) == 0
}

// Format reads the athlete's data and renders it within maxChars. Individual
// read failures are logged and the affected section is left out; only a
// cancelled or expired context is returned as an error.
func (f *Formatter) Format(ctx context.Context, athleteID string, maxChars int) (models.UserLayer, error) {
	snap, err := f.fetch(ctx, athleteID)
	if err != nil {
		return models.UserLayer{}, err
	}
	return f.render(snap, maxChars), nil
}

func (f *Formatter) fetch(ctx context.Context, athleteID string) (*snapshot, error) {
	since := f.now().AddDate(0, 0, -f.windowDays)
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	// Each read writes only its own field.
	read := func(what string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case errors.Is(err, db.ErrNotFound):
				log.Debug().Str("athlete_id", athleteID).Str("read", what).Msg("No athlete data found")
			default:
				log.Warn().Err(err).Str("athlete_id", athleteID).Str("read", what).Msg("Athlete read failed")
			}
			return nil
		})
	}

	read("profile", func(ctx context.Context) (err error) {
		snap.profile, err = f.store.GetProfile(ctx, athleteID)
		return err
	})
	read("runs", func(ctx context.Context) (err error) {
		snap.runs, err = f.store.RecentRuns(ctx, athleteID, since, f.maxActivities)
		return err
	})
	read("feedback", func(ctx context.Context) (err error) {
		snap.feedback, err = f.store.RecentFeedback(ctx, athleteID, since)
		return err
	})
	read("plan", func(ctx context.Context) (err error) {
		snap.plan, err = f.store.ActivePlan(ctx, athleteID)
		return err
	})
	read("checkin", func(ctx context.Context) (err error) {
		snap.checkIn, err = f.store.LatestCheckIn(ctx, athleteID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (f *Formatter) render(snap *snapshot, maxChars int) models.UserLayer {
	score := fatigue.Score(snap.feedback, snap.checkIn)
	layer := models.UserLayer{
		FatigueScore:  score,
		HasActivePlan: snap.plan != nil,
	}
	if phase := snap.plan.CurrentPhase(); phase != "" {
		layer.CurrentPhase = &phase
	}

	if snap.empty() {
		layer.Text = NoDataText
		layer.TokenCount = tokens.Estimate(layer.Text)
		return layer
	}

	var b strings.Builder
	b.WriteString(leadSection(formatProfile(snap.profile), maxChars))
	b.WriteString(leadSection(f.formatStatus(snap, score), budget.Remaining(maxChars, b.Len())))

	header := fmt.Sprintf("### Recent Activity (last %d days)\n", f.windowDays)
	if len(snap.runs) == 0 {
		b.WriteString(header)
		b.WriteString("No activities recorded.\n\n")
	} else {
		lines := activityLines(snap.runs, snap.feedback)
		remaining := budget.Remaining(maxChars, b.Len()+len(header)+1)
		packed, _ := budget.Pack(lines, remaining, lineLen, true)
		layer.ActivitiesIncluded = len(packed)
		b.WriteString(header)
		for _, l := range packed {
			b.WriteString(l)
		}
		b.WriteString("\n")
	}

	if snap.plan != nil && budget.Remaining(maxChars, b.Len()) >= planReserve {
		b.WriteString(packSection(formatPlan(snap.plan), budget.Remaining(maxChars, b.Len())))
	}
	if snap.checkIn != nil && budget.Remaining(maxChars, b.Len()) >= checkInReserve {
		b.WriteString(packSection(formatCheckIn(snap.checkIn), budget.Remaining(maxChars, b.Len())))
	}

	layer.Text = strings.TrimRight(b.String(), "\n")
	layer.TokenCount = tokens.Estimate(layer.Text)
	return layer
}

func lineLen(s string) int { return len(s) }

// packSection keeps the header line and as many following lines as fit.
func packSection(lines []string, limit int) string {
	packed, _ := budget.Pack(lines, limit-1, lineLen, false)
	if len(packed) <= 1 {
		return ""
	}
	return strings.Join(packed, "") + "\n"
}

// leadSection keeps the header and first line of a section whatever the
// limit, then as many following lines as fit.
func leadSection(lines []string, limit int) string {
	if len(lines) == 0 {
		return ""
	}
	packed, _ := budget.Pack(lines, limit-1, lineLen, false)
	if len(packed) < 2 {
		packed = lines[:min(2, len(lines))]
	}
	return strings.Join(packed, "") + "\n"
}

func formatProfile(p *models.AthleteProfile) []string {
	if p == nil {
		return nil
	}
	lines := []string{"### Athlete Profile\n"}
	if p.Name != "" {
		lines = append(lines, fmt.Sprintf("Name: %s\n", p.Name))
	}
	var body []string
	if p.Age > 0 {
		body = append(body, fmt.Sprintf("Age: %d", p.Age))
	}
	if p.WeightKg > 0 {
		body = append(body, fmt.Sprintf("Weight: %.1f kg", p.WeightKg))
	}
	if len(body) > 0 {
		lines = append(lines, strings.Join(body, " | ")+"\n")
	}
	if p.Goal != "" {
		lines = append(lines, fmt.Sprintf("Goal: %s\n", p.Goal))
	}
	var hr []string
	if p.RestingHR > 0 {
		hr = append(hr, fmt.Sprintf("resting %d", p.RestingHR))
	}
	if p.MaxHR > 0 {
		hr = append(hr, fmt.Sprintf("max %d", p.MaxHR))
	}
	if p.ThresholdHR > 0 {
		hr = append(hr, fmt.Sprintf("threshold %d", p.ThresholdHR))
	}
	if len(hr) > 0 {
		lines = append(lines, fmt.Sprintf("Heart Rate: %s\n", strings.Join(hr, ", ")))
	}
	if len(p.HRZones) > 0 {
		zones := make([]string, len(p.HRZones))
		for i, z := range p.HRZones {
			zones[i] = fmt.Sprintf("%s %d-%d", z.Name, z.Min, z.Max)
		}
		lines = append(lines, fmt.Sprintf("HR Zones: %s\n", strings.Join(zones, ", ")))
	}
	if len(p.AvailableDays) > 0 {
		lines = append(lines, fmt.Sprintf("Available Days: %s\n", strings.Join(p.AvailableDays, ", ")))
	}
	if p.InjuryHistory != "" {
		lines = append(lines, fmt.Sprintf("Injury History: %s\n", p.InjuryHistory))
	}
	return lines
}

func (f *Formatter) formatStatus(snap *snapshot, score float64) []string {
	weekAgo := f.now().AddDate(0, 0, -7)
	var volume float64
	var count int
	types := map[string]struct{}{}
	for _, r := range snap.runs {
		if !r.Date.Before(weekAgo) {
			volume += r.DistanceKm
			count++
		}
		if r.WorkoutType != "" {
			types[r.WorkoutType] = struct{}{}
		}
	}

	lines := []string{"### Current Status\n"}
	lines = append(lines, fmt.Sprintf("Weekly Volume: %.1f km (%d runs in last 7 days)\n", volume, count))
	lines = append(lines, fmt.Sprintf("Fatigue Score: %.1f/10\n", score))
	if phase := snap.plan.CurrentPhase(); phase != "" {
		lines = append(lines, fmt.Sprintf("Current Phase: %s\n", phase))
	}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, t)
		}
		sort.Strings(names)
		lines = append(lines, fmt.Sprintf("Recent Workout Types: %s\n", strings.Join(names, ", ")))
	}
	return lines
}

// activityLines renders one line per run, most recent first, annotated with
// same-day feedback when present.
func activityLines(runs []*models.Run, feedback []*models.Feedback) []string {
	byDay := make(map[string]*models.Feedback, len(feedback))
	for _, fb := range feedback {
		day := fb.ActivityDate.Format(time.DateOnly)
		if _, ok := byDay[day]; !ok {
			byDay[day] = fb
		}
	}

	sorted := make([]*models.Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })

	lines := make([]string, 0, len(sorted))
	for _, r := range sorted {
		kind := r.WorkoutType
		if kind == "" {
			kind = "run"
		}
		day := r.Date.Format(time.DateOnly)
		line := fmt.Sprintf("- %s %s: %s %.1f km in %s", r.Date.Format("Mon"), day, kind, r.DistanceKm, r.Duration())
		if pace := r.Pace(); pace != "" {
			line += " (" + pace + ")"
		}
		if r.AvgHR > 0 {
			line += fmt.Sprintf(", avg HR %d", r.AvgHR)
		}
		if fb, ok := byDay[day]; ok {
			line += formatFeedback(fb)
		}
		lines = append(lines, line+"\n")
	}
	return lines
}

func formatFeedback(fb *models.Feedback) string {
	var parts []string
	if fb.Feeling != "" {
		parts = append(parts, "felt "+fb.Feeling)
	}
	if fb.EffortLevel != nil {
		parts = append(parts, fmt.Sprintf("effort %d/10", *fb.EffortLevel))
	}
	if fb.Rating != nil {
		parts = append(parts, fmt.Sprintf("rating %d/10", *fb.Rating))
	}
	if fb.Comment != "" {
		parts = append(parts, fmt.Sprintf("%q", fb.Comment))
	}
	if len(parts) == 0 {
		return ""
	}
	return " | " + strings.Join(parts, ", ")
}

// formatPlan returns the header line followed by detail lines.
func formatPlan(p *models.TrainingPlan) []string {
	lines := []string{"### Active Plan\n"}
	summary := fmt.Sprintf("Plan: %s, week %d of %d", p.PlanType, p.CurrentWeek, p.DurationWeeks)
	if phase := p.CurrentPhase(); phase != "" {
		summary += " (" + phase + ")"
	}
	lines = append(lines, summary+"\n")

	week := p.CurrentPlanWeek()
	if week == nil {
		return lines
	}
	if week.Focus != "" {
		lines = append(lines, fmt.Sprintf("Focus: %s\n", week.Focus))
	}
	if week.TargetVolumeKm > 0 {
		lines = append(lines, fmt.Sprintf("Target Volume: %.0f km\n", week.TargetVolumeKm))
	}
	for _, day := range models.Weekdays {
		if w, ok := week.Workouts[day]; ok && w != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s\n", day, w))
		}
	}
	return lines
}

func formatCheckIn(c *models.WeeklyCheckIn) []string {
	lines := []string{fmt.Sprintf("### Weekly Check-in (week of %s)\n", c.WeekStart.Format(time.DateOnly))}
	var scores []string
	if c.Feeling != nil {
		scores = append(scores, fmt.Sprintf("Feeling: %d/10", *c.Feeling))
	}
	if c.SleepQuality != nil {
		scores = append(scores, fmt.Sprintf("Sleep: %d/10", *c.SleepQuality))
	}
	if c.StressLevel != nil {
		scores = append(scores, fmt.Sprintf("Stress: %d/10", *c.StressLevel))
	}
	if len(scores) > 0 {
		lines = append(lines, strings.Join(scores, " | ")+"\n")
	}
	if c.Notes != "" {
		lines = append(lines, fmt.Sprintf("Notes: %s\n", c.Notes))
	}
	return lines
}
