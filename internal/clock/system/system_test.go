package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before) && got.Before(after), "got %v outside [%v, %v]", got, before, after)
}

func TestClockUnix(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Unix()
	second := clk.Unix()
	assert.GreaterOrEqual(t, second, first)
	assert.InDelta(t, time.Now().Unix(), first, 2)
}
