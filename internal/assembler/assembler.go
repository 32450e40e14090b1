// Package assembler builds the enhanced prompt context for a coaching query
// by splitting the budget across the athlete, coach and methodology layers,
// retrieving the three concurrently and merging them in priority order.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/coachctx/internal/budget"
	"github.com/thebtf/coachctx/internal/classify"
	"github.com/thebtf/coachctx/internal/coachpatterns"
	"github.com/thebtf/coachctx/internal/db"
	"github.com/thebtf/coachctx/internal/fatigue"
	"github.com/thebtf/coachctx/internal/methodology"
	"github.com/thebtf/coachctx/internal/tokens"
	"github.com/thebtf/coachctx/internal/usercontext"
	"github.com/thebtf/coachctx/pkg/models"
)

const (
	// DefaultTotalBudget is used when a request carries no budget.
	DefaultTotalBudget = 8000
	// DefaultBranchTimeout bounds each retrieval branch.
	DefaultBranchTimeout = 8 * time.Second
	// The active-plan lookup may use 1/phaseLookupShare of the branch window
	// before the coach and book branches start.
	phaseLookupShare = 4

	UserHeader  = "## Athlete Data"
	CoachHeader = "## Coach Patterns"
	BookHeader  = "## Methodology Guidelines"

	instrumentationName = "github.com/thebtf/coachctx/internal/assembler"
)

// Layer names used in logs and metrics.
const (
	LayerUser  = "user"
	LayerCoach = "coach"
	LayerBook  = "book"
)

// UserSource formats the athlete-data layer.
type UserSource interface {
	Format(ctx context.Context, athleteID string, maxChars int) (models.UserLayer, error)
}

// CoachSource retrieves the coach-pattern layer.
type CoachSource interface {
	Retrieve(ctx context.Context, athleteID, query string, filters models.CoachFilters, maxChars int) (models.CoachLayer, error)
}

// BookSource retrieves the methodology layer.
type BookSource interface {
	Retrieve(ctx context.Context, query string, filters models.BookFilters, maxChars int) (models.BookLayer, error)
}

// PlanSource resolves the athlete's active plan for phase filtering.
type PlanSource interface {
	ActivePlan(ctx context.Context, athleteID string) (*models.TrainingPlan, error)
}

// Request is one assembly call.
type Request struct {
	AthleteID   string           `json:"athlete_id"`
	Query       string           `json:"query"`
	QueryType   models.QueryType `json:"query_type,omitempty"`
	Level       string           `json:"level,omitempty"`
	TotalBudget int              `json:"total_budget,omitempty"`
}

// Engine assembles enhanced contexts. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	user          UserSource
	coach         CoachSource
	book          BookSource
	plans         PlanSource
	table         budget.Table
	degraded      metric.Int64Counter
	duration      metric.Float64Histogram
	branchTimeout time.Duration
	defaultBudget int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBranchTimeout sets the per-branch timeout.
func WithBranchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.branchTimeout = d
		}
	}
}

// WithDefaultBudget sets the budget used when a request has none.
func WithDefaultBudget(total int) Option {
	return func(e *Engine) {
		if total > 0 {
			e.defaultBudget = total
		}
	}
}

// WithTable replaces the weight table. The table must validate.
func WithTable(t budget.Table) Option {
	return func(e *Engine) { e.table = t }
}

// New creates an Engine. plans may be nil, in which case no phase filter is
// derived.
func New(user UserSource, coach CoachSource, book BookSource, plans PlanSource, opts ...Option) (*Engine, error) {
	e := &Engine{
		user:          user,
		coach:         coach,
		book:          book,
		plans:         plans,
		table:         budget.DefaultTable,
		branchTimeout: DefaultBranchTimeout,
		defaultBudget: DefaultTotalBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.table.Validate(); err != nil {
		return nil, fmt.Errorf("weight table: %w", err)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if e.degraded, err = meter.Int64Counter("coachctx.layer.degraded",
		metric.WithDescription("Retrieval branches replaced by their placeholder")); err != nil {
		return nil, fmt.Errorf("create degraded counter: %w", err)
	}
	if e.duration, err = meter.Float64Histogram("coachctx.assemble.duration",
		metric.WithDescription("Context assembly latency"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return e, nil
}

// Table returns the weight table in use.
func (e *Engine) Table() budget.Table { return e.table }

// Assemble builds the enhanced context for req. It never fails: a branch that
// errors, panics, times out or is cancelled contributes its placeholder.
func (e *Engine) Assemble(ctx context.Context, req Request) *models.EnhancedContext {
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Assemble")
	defer span.End()

	queryType := classify.Resolve(req.QueryType, req.Query)
	total := req.TotalBudget
	if total <= 0 {
		total = e.defaultBudget
	}
	alloc := budget.Allocate(total, e.table.For(queryType))

	workoutType := classify.GuessWorkoutType(req.Query)
	deadline := start.Add(e.branchTimeout)
	phase := sync.OnceValue(func() string { return e.currentPhase(ctx, req.AthleteID, deadline) })

	span.SetAttributes(
		attribute.String("query_type", string(queryType)),
		attribute.Int("budget.user", alloc.User),
		attribute.Int("budget.coach", alloc.Coach),
		attribute.Int("budget.book", alloc.Book),
	)

	var (
		wg    sync.WaitGroup
		user  models.UserLayer
		coach models.CoachLayer
		book  models.BookLayer
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		user = runBranch(ctx, e, deadline, LayerUser, func(ctx context.Context) (models.UserLayer, error) {
			return e.user.Format(ctx, req.AthleteID, tokens.Chars(alloc.User))
		}, userPlaceholder)
	}()
	go func() {
		defer wg.Done()
		filters := models.CoachFilters{Phase: phase(), WorkoutType: workoutType, Category: workoutType}
		coach = runBranch(ctx, e, deadline, LayerCoach, func(ctx context.Context) (models.CoachLayer, error) {
			return e.coach.Retrieve(ctx, req.AthleteID, req.Query, filters, tokens.Chars(alloc.Coach))
		}, coachPlaceholder)
	}()
	go func() {
		defer wg.Done()
		filters := models.BookFilters{Phase: phase(), WorkoutType: workoutType, Level: req.Level}
		book = runBranch(ctx, e, deadline, LayerBook, func(ctx context.Context) (models.BookLayer, error) {
			return e.book.Retrieve(ctx, req.Query, filters, tokens.Chars(alloc.Book))
		}, bookPlaceholder)
	}()
	wg.Wait()

	ec := Merge(queryType, user, coach, book)

	elapsed := float64(time.Since(start).Microseconds()) / 1000
	e.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("query_type", string(queryType))))
	log.Info().
		Str("athlete_id", req.AthleteID).
		Str("query_type", string(queryType)).
		Int("total_tokens", ec.TotalTokens).
		Int("user_tokens", ec.User.TokenCount).
		Int("coach_tokens", ec.Coach.TokenCount).
		Int("book_tokens", ec.Book.TokenCount).
		Int("sources", len(ec.Book.Sources)).
		Int("workouts", len(ec.Coach.WorkoutsIncluded)).
		Float64("elapsed_ms", elapsed).
		Msg("Context assembled")
	return ec
}

// currentPhase resolves the active plan's current phase within a quarter of
// the branch window, never past deadline. Any failure yields no phase.
func (e *Engine) currentPhase(ctx context.Context, athleteID string, deadline time.Time) string {
	if e.plans == nil {
		return ""
	}
	if d := time.Now().Add(e.branchTimeout / phaseLookupShare); d.Before(deadline) {
		deadline = d
	}
	plan := runBranch(ctx, e, deadline, "plan", func(ctx context.Context) (*models.TrainingPlan, error) {
		plan, err := e.plans.ActivePlan(ctx, athleteID)
		if errors.Is(err, db.ErrNotFound) {
			log.Debug().Str("athlete_id", athleteID).Msg("No active plan, phase filter unset")
			return nil, nil
		}
		return plan, err
	}, func(string) *models.TrainingPlan { return nil })
	return plan.CurrentPhase()
}

type branchResult[T any] struct {
	value T
	err   error
}

// runBranch runs fn until deadline and converts any failure into the
// placeholder built by fallback. fn keeps running after a timeout until it
// observes its cancelled context; its late result is discarded.
func runBranch[T any](ctx context.Context, e *Engine, deadline time.Time, layer string, fn func(context.Context) (T, error), fallback func(reason string) T) T {
	bctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	done := make(chan branchResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- branchResult[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(bctx)
		done <- branchResult[T]{value: v, err: err}
	}()

	var reason string
	select {
	case res := <-done:
		if res.err == nil {
			return res.value
		}
		reason = "retrieval failed"
		if bctx.Err() != nil {
			reason = ctxReason(ctx, bctx)
		}
		log.Warn().Err(res.err).Str("layer", layer).Msg("Context layer degraded")
	case <-bctx.Done():
		reason = ctxReason(ctx, bctx)
		log.Warn().Err(bctx.Err()).Str("layer", layer).Time("deadline", deadline).Msg("Context layer degraded")
	}

	e.degraded.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("layer", layer),
		attribute.String("reason", reason),
	))
	return fallback(reason)
}

func ctxReason(parent, branch context.Context) string {
	if parent.Err() != nil {
		return "request cancelled"
	}
	if branch.Err() != nil {
		return "timed out"
	}
	return "retrieval failed"
}

func userPlaceholder(string) models.UserLayer {
	return models.UserLayer{
		Text:         usercontext.NoDataText,
		TokenCount:   tokens.Estimate(usercontext.NoDataText),
		FatigueScore: fatigue.DefaultScore,
	}
}

func coachPlaceholder(string) models.CoachLayer {
	return models.CoachLayer{
		Text:             coachpatterns.NoDataText,
		WorkoutsIncluded: []string{},
		PhasesIncluded:   []string{},
		TokenCount:       tokens.Estimate(coachpatterns.NoDataText),
	}
}

func bookPlaceholder(reason string) models.BookLayer {
	return models.BookLayer{
		Text:    methodology.UnavailableText(reason),
		Sources: []models.BookSource{},
	}
}

// FatigueLine renders the fatigue descriptor appended after the user layer.
func FatigueLine(score float64) string {
	return fmt.Sprintf("Fatigue Level: %.1f/10 (%s)", score, fatigue.Describe(score))
}

// Merge combines the three layers in fixed priority order. Every section is
// emitted, placeholders included.
func Merge(queryType models.QueryType, user models.UserLayer, coach models.CoachLayer, book models.BookLayer) *models.EnhancedContext {
	if book.Text == "" {
		book.Text = methodology.NoMatchesText
	}

	var b strings.Builder
	b.WriteString(UserHeader + "\n")
	b.WriteString(user.Text + "\n")
	b.WriteString(FatigueLine(user.FatigueScore) + "\n\n")
	b.WriteString(CoachHeader + "\n")
	b.WriteString(coach.Text + "\n\n")
	b.WriteString(BookHeader + "\n")
	b.WriteString(book.Text)

	return &models.EnhancedContext{
		QueryType:      queryType,
		CombinedPrompt: b.String(),
		User:           user,
		Coach:          coach,
		Book:           book,
		TotalTokens:    user.TokenCount + coach.TokenCount + book.TokenCount,
	}
}

// countTokens runs the encoder; it is the expensive part of GetContextStats.
var countTokens = tokens.Count

// GetContextStats summarizes ec for logging and observability. It carries
// counts and citations only.
func GetContextStats(ec *models.EnhancedContext) models.ContextStats {
	if ec == nil {
		return models.ContextStats{Sources: []models.BookSource{}, Workouts: []string{}}
	}
	sources := ec.Book.Sources
	if sources == nil {
		sources = []models.BookSource{}
	}
	workouts := ec.Coach.WorkoutsIncluded
	if workouts == nil {
		workouts = []string{}
	}
	return models.ContextStats{
		Sources:  sources,
		Workouts: workouts,
		PerLayerTokens: models.LayerTokens{
			User:  ec.User.TokenCount,
			Coach: ec.Coach.TokenCount,
			Book:  ec.Book.TokenCount,
		},
		TotalTokens:           ec.TotalTokens,
		EncodedTokens:         countTokens(ec.CombinedPrompt),
		SourceCount:           len(sources),
		WorkoutsIncludedCount: len(workouts),
	}
}
