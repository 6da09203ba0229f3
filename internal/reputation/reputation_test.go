package reputation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnobservedPeerIsNeutral(t *testing.T) {
	m := New(time.Hour, nil)
	value, confidence := m.Score("unknown")
	assert.Equal(t, 0.5, value)
	assert.Equal(t, 0.0, confidence)
}

func TestSuccessRaisesScoreAboveDefault(t *testing.T) {
	m := New(time.Hour, nil)
	for i := 0; i < 5; i++ {
		m.Report("p1", true, 10*time.Millisecond)
	}
	value, confidence := m.Score("p1")
	assert.Greater(t, value, 0.5)
	assert.Greater(t, confidence, 0.0)
}

func TestFailurePenalizesScore(t *testing.T) {
	m := New(time.Hour, nil)
	m.Report("p1", false, 0)
	value, _ := m.Score("p1")
	assert.Less(t, value, 0.5)
}

func TestLessPrefersHigherConfidenceWeightedScore(t *testing.T) {
	m := New(time.Hour, nil)
	for i := 0; i < 10; i++ {
		m.Report("good", true, 5*time.Millisecond)
	}
	m.Report("bad", false, 0)

	assert.True(t, m.Less("good", "bad"))
	assert.False(t, m.Less("bad", "good"))
}
