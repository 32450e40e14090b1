package usercontext

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	profile    *models.AthleteProfile
	plan       *models.TrainingPlan
	checkIn    *models.WeeklyCheckIn
	runs       []*models.Run
	feedback   []*models.Feedback
	runsErr    error
	profileErr error
	block      bool
	gotSince   time.Time
}

func (s *fakeStore) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *fakeStore) GetProfile(ctx context.Context, _ string) (*models.AthleteProfile, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	if s.profile == nil {
		return nil, db.ErrNotFound
	}
	return s.profile, nil
}

func (s *fakeStore) RecentRuns(ctx context.Context, _ string, since time.Time, limit int) ([]*models.Run, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.gotSince = since
	if s.runsErr != nil {
		return nil, s.runsErr
	}
	var out []*models.Run
	for _, r := range s.runs {
		if !r.Date.Before(since) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) RecentFeedback(ctx context.Context, _ string, _ time.Time) ([]*models.Feedback, error) {
	return s.feedback, s.wait(ctx)
}

func (s *fakeStore) ActivePlan(ctx context.Context, _ string) (*models.TrainingPlan, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.plan == nil {
		return nil, db.ErrNotFound
	}
	return s.plan, nil
}

func (s *fakeStore) LatestCheckIn(ctx context.Context, _ string) (*models.WeeklyCheckIn, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.checkIn == nil {
		return nil, db.ErrNotFound
	}
	return s.checkIn, nil
}

func intp(v int) *int { return &v }

func daysAgo(n int) time.Time { return testNow.AddDate(0, 0, -n) }

func threeRuns() []*models.Run {
	return []*models.Run{
		{Date: daysAgo(1), DistanceKm: 5, DurationSec: 1800, WorkoutType: "easy"},
		{Date: daysAgo(3), DistanceKm: 8, DurationSec: 2743, WorkoutType: "tempo", AvgHR: 158},
		{Date: daysAgo(6), DistanceKm: 12, DurationSec: 4320, WorkoutType: "long_run"},
	}
}

func newFormatter(s *fakeStore) *Formatter {
	return New(s, WithClock(func() time.Time { return testNow }))
}

func TestFormat_ThreeActivitiesNoCheckIn(t *testing.T) {
	s := &fakeStore{
		profile: &models.AthleteProfile{ID: "a1", Name: "Sam", Goal: "Spring half marathon"},
		runs:    threeRuns(),
	}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 20800)
	require.NoError(t, err)

	assert.Equal(t, 3, layer.ActivitiesIncluded)
	assert.Equal(t, 5.0, layer.FatigueScore)
	assert.False(t, layer.HasActivePlan)
	assert.Nil(t, layer.CurrentPhase)
	for _, km := range []string{"5.0 km", "8.0 km", "12.0 km"} {
		assert.Contains(t, layer.Text, km)
	}
	assert.Contains(t, layer.Text, "Weekly Volume: 25.0 km (3 runs in last 7 days)")
	assert.Contains(t, layer.Text, "Recent Workout Types: easy, long_run, tempo")
	assert.Contains(t, layer.Text, "(5:43/km), avg HR 158")
	assert.NotContains(t, layer.Text, "Weekly Check-in")
	assert.Equal(t, (len(layer.Text)+3)/4, layer.TokenCount)
	assert.Equal(t, daysAgo(DefaultWindowDays), s.gotSince)
}

func TestFormat_MostRecentFirst(t *testing.T) {
	runs := threeRuns()
	s := &fakeStore{runs: []*models.Run{runs[2], runs[0], runs[1]}}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 20800)
	require.NoError(t, err)

	i5 := strings.Index(layer.Text, "5.0 km")
	i8 := strings.Index(layer.Text, "8.0 km")
	i12 := strings.Index(layer.Text, "12.0 km")
	assert.True(t, i5 < i8 && i8 < i12, layer.Text)
}

func TestFormat_AlwaysIncludesOneActivity(t *testing.T) {
	s := &fakeStore{runs: threeRuns()}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, layer.ActivitiesIncluded)
	assert.Contains(t, layer.Text, "5.0 km")
	assert.NotContains(t, layer.Text, "8.0 km")
}

func TestFormat_ProfileAndStatusRespectBudget(t *testing.T) {
	s := &fakeStore{
		profile: &models.AthleteProfile{ID: "a1", Name: "Sam", Age: 34, WeightKg: 61,
			Goal:          strings.Repeat("sub-3 marathon ", 20),
			InjuryHistory: strings.Repeat("left achilles tendinopathy ", 20)},
		runs: threeRuns(),
	}
	full, err := newFormatter(s).Format(context.Background(), "a1", 100000)
	require.NoError(t, err)
	require.Contains(t, full.Text, "Injury History")

	layer, err := newFormatter(s).Format(context.Background(), "a1", 120)
	require.NoError(t, err)

	assert.Contains(t, layer.Text, "### Athlete Profile\nName: Sam\nAge: 34 | Weight: 61.0 kg\n")
	assert.NotContains(t, layer.Text, "Goal:")
	assert.NotContains(t, layer.Text, "Injury History")
	assert.Contains(t, layer.Text, "### Current Status\nWeekly Volume:")
	assert.NotContains(t, layer.Text, "Fatigue Score:")
	assert.Equal(t, 1, layer.ActivitiesIncluded)
	assert.Less(t, len(layer.Text), len(full.Text)/4)
}

func TestFormat_PacksActivitiesToBudget(t *testing.T) {
	s := &fakeStore{runs: threeRuns()}
	full, err := newFormatter(s).Format(context.Background(), "a1", 100000)
	require.NoError(t, err)

	// Budget that fits everything except the last line. The trimmed trailing
	// newline accounts for the +1.
	lastLine := full.Text[strings.LastIndex(full.Text, "\n- ")+1:]
	limit := len(full.Text) - len(lastLine) + 1
	layer, err := newFormatter(s).Format(context.Background(), "a1", limit)
	require.NoError(t, err)
	assert.Equal(t, 2, layer.ActivitiesIncluded)
	assert.LessOrEqual(t, len(layer.Text), limit)
}

func TestFormat_SectionOrderWithPlanAndCheckIn(t *testing.T) {
	s := &fakeStore{
		profile: &models.AthleteProfile{ID: "a1", Name: "Sam", RestingHR: 48, MaxHR: 188,
			HRZones: []models.HRZone{{Name: "Z2", Min: 130, Max: 150}}},
		runs: threeRuns(),
		plan: &models.TrainingPlan{PlanType: "marathon", DurationWeeks: 16, CurrentWeek: 5, IsActive: true,
			Weeks: []models.PlanWeek{{WeekNumber: 5, Phase: "build", Focus: "threshold",
				Workouts: map[string]string{"tuesday": "6x1km @ T", "saturday": "24 km long"}}}},
		checkIn:  &models.WeeklyCheckIn{WeekStart: daysAgo(7), SleepQuality: intp(6), StressLevel: intp(7), Notes: "Busy week"},
		feedback: []*models.Feedback{{ActivityDate: daysAgo(3), EffortLevel: intp(8), Feeling: "strong"}},
	}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 20800)
	require.NoError(t, err)

	require.NotNil(t, layer.CurrentPhase)
	assert.Equal(t, "build", *layer.CurrentPhase)
	assert.True(t, layer.HasActivePlan)
	// effort 8, sleep debt 5, stress 7
	assert.Equal(t, 6.7, layer.FatigueScore)

	order := []string{"### Athlete Profile", "### Current Status", "### Recent Activity", "### Active Plan", "### Weekly Check-in"}
	last := -1
	for _, h := range order {
		i := strings.Index(layer.Text, h)
		require.GreaterOrEqual(t, i, 0, h)
		assert.Greater(t, i, last, h)
		last = i
	}
	assert.Contains(t, layer.Text, "Plan: marathon, week 5 of 16 (build)")
	assert.Contains(t, layer.Text, "- tuesday: 6x1km @ T")
	assert.Contains(t, layer.Text, "| felt strong, effort 8/10")
	assert.Contains(t, layer.Text, "Sleep: 6/10 | Stress: 7/10")
}

func TestFormat_SkipsPlanWhenBudgetTight(t *testing.T) {
	s := &fakeStore{
		runs: threeRuns(),
		plan: &models.TrainingPlan{PlanType: "marathon", CurrentWeek: 1, IsActive: true,
			Weeks: []models.PlanWeek{{WeekNumber: 1, Phase: "base"}}},
	}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 400)
	require.NoError(t, err)
	assert.NotContains(t, layer.Text, "### Active Plan")
	assert.True(t, layer.HasActivePlan)
}

func TestFormat_ReadFailuresDegrade(t *testing.T) {
	s := &fakeStore{
		profileErr: errors.New("connection reset"),
		runsErr:    errors.New("timeout"),
		checkIn:    &models.WeeklyCheckIn{WeekStart: daysAgo(2), Feeling: intp(3)},
	}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 4000)
	require.NoError(t, err)
	assert.NotContains(t, layer.Text, "### Athlete Profile")
	assert.Contains(t, layer.Text, "No activities recorded.")
	assert.Contains(t, layer.Text, "Feeling: 3/10")
	assert.Equal(t, 8.0, layer.FatigueScore)
}

func TestFormat_NoData(t *testing.T) {
	layer, err := newFormatter(&fakeStore{}).Format(context.Background(), "a1", 4000)
	require.NoError(t, err)
	assert.Equal(t, NoDataText, layer.Text)
	assert.Equal(t, 0, layer.ActivitiesIncluded)
	assert.Equal(t, 5.0, layer.FatigueScore)
	assert.Greater(t, layer.TokenCount, 0)
}

func TestFormat_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newFormatter(&fakeStore{block: true}).Format(ctx, "a1", 4000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormat_WeeklyVolumeUsesLastSevenDays(t *testing.T) {
	s := &fakeStore{runs: []*models.Run{
		{Date: daysAgo(2), DistanceKm: 10, DurationSec: 3000},
		{Date: daysAgo(10), DistanceKm: 20, DurationSec: 6600},
	}}
	layer, err := newFormatter(s).Format(context.Background(), "a1", 4000)
	require.NoError(t, err)
	assert.Contains(t, layer.Text, "Weekly Volume: 10.0 km (1 runs in last 7 days)")
	assert.Equal(t, 2, layer.ActivitiesIncluded)
}

func TestWithWindowDays(t *testing.T) {
	s := &fakeStore{}
	f := New(s, WithWindowDays(28), WithClock(func() time.Time { return testNow }))
	_, err := f.Format(context.Background(), "a1", 100)
	require.NoError(t, err)
	assert.Equal(t, daysAgo(28), s.gotSince)
	assert.Equal(t, DefaultWindowDays, New(s, WithWindowDays(0)).windowDays)
}
