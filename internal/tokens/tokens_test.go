package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("a"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
	assert.Equal(t, 250, Estimate(strings.Repeat("x", 1000)))
}

func TestChars(t *testing.T) {
	assert.Equal(t, 20800, Chars(5200))
	assert.Equal(t, 0, Chars(0))
	assert.Equal(t, 0, Chars(-3))
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(""))
	n := Count("Easy aerobic running builds the base for everything else.")
	assert.Greater(t, n, 0)
	assert.Less(t, n, 40)
}
