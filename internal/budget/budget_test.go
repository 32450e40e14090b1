package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/coachctx/pkg/models"
)

func TestDefaultTable_SumsToOne(t *testing.T) {
	require.NoError(t, DefaultTable.Validate())
	for _, q := range models.QueryTypes {
		w := DefaultTable.For(q)
		assert.InDelta(t, 1.0, w.User+w.Coach+w.Book, 1e-9, "weights for %s", q)
	}
}

func TestTable_Validate(t *testing.T) {
	bad := DefaultTable
	bad.PlanReview = models.ContextWeights{User: 0.5, Coach: 0.3, Book: 0.3}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan_review")

	negative := DefaultTable
	negative.AskCoach = models.ContextWeights{User: 1.2, Coach: -0.2, Book: 0}
	assert.Error(t, negative.Validate())
}

func TestTable_ForUnknownFallsBackToAskCoach(t *testing.T) {
	assert.Equal(t, DefaultTable.AskCoach, DefaultTable.For("unknown"))
	assert.Equal(t, models.ContextWeights{User: 0.65, Coach: 0.10, Book: 0.25}, DefaultTable.For(models.QueryDailyAdvice))
}

func TestAllocate_DailyAdvice(t *testing.T) {
	a := Allocate(8000, DefaultTable.For(models.QueryDailyAdvice))
	assert.Equal(t, Allocation{Total: 8000, User: 5200, Coach: 800, Book: 2000}, a)
}

func TestAllocate_NeverOvershoots(t *testing.T) {
	for _, q := range models.QueryTypes {
		w := DefaultTable.For(q)
		for total := 3; total <= 20000; total += 7 {
			a := Allocate(total, w)
			sum := a.User + a.Coach + a.Book
			assert.LessOrEqual(t, sum, total, "%s total=%d", q, total)
			assert.GreaterOrEqual(t, sum, total-2, "%s total=%d", q, total)
		}
	}
}

func TestAllocate_Negative(t *testing.T) {
	assert.Equal(t, Allocation{}, Allocate(-10, DefaultTable.AskCoach))
}

func strLen(s string) int { return len(s) }

func TestPack(t *testing.T) {
	items := []string{"aaaa", "bbbb", "cccc"}

	packed, used := Pack(items, 9, strLen, true)
	assert.Equal(t, []string{"aaaa", "bbbb"}, packed)
	assert.Equal(t, 8, used)

	packed, used = Pack(items, 100, strLen, true)
	assert.Len(t, packed, 3)
	assert.Equal(t, 12, used)
}

func TestPack_StopsAtFirstMiss(t *testing.T) {
	items := []string{"aaaa", strings.Repeat("b", 50), "c"}
	packed, _ := Pack(items, 10, strLen, true)
	assert.Equal(t, []string{"aaaa"}, packed)
}

func TestPack_MinOne(t *testing.T) {
	big := strings.Repeat("x", 500)
	packed, used := Pack([]string{big, "y"}, 100, strLen, true)
	assert.Equal(t, []string{big}, packed)
	assert.Equal(t, 500, used)

	packed, used = Pack([]string{big}, 100, strLen, false)
	assert.Empty(t, packed)
	assert.Equal(t, 0, used)

	packed, _ = Pack([]string{}, 100, strLen, true)
	assert.Empty(t, packed)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 60, Remaining(100, 40))
	assert.Equal(t, 0, Remaining(100, 140))
}
