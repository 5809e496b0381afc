package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(t0)
	assert.Equal(t, t0, c.Now())

	c.Advance(48 * time.Hour)
	assert.Equal(t, t0.AddDate(0, 0, 2), c.Now())

	c.Set(t0)
	assert.Equal(t, t0, c.Now())
}

func TestReal_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
