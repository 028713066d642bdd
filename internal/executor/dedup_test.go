package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dd := NewDedup(time.Minute)
	dd.now = func() time.Time { return now }

	assert.False(t, dd.Seen("a"))
	assert.True(t, dd.Seen("a"))
	assert.False(t, dd.Seen("b"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, dd.Cleanup())
	assert.Zero(t, dd.Len())
	assert.False(t, dd.Seen("a"))
}

func TestDedupDisabled(t *testing.T) {
	dd := NewDedup(0)
	assert.False(t, dd.Seen("a"))
	assert.False(t, dd.Seen("a"))
}
