package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCrossfadePointsRejectsOutOfRangeFadeIn(t *testing.T) {
	_, err := CalculateCrossfadePoints(5, 100, 50, 44100)
	require.Error(t, err)
}

func TestCalculateCrossfadePointsRejectsOutOfRangeFadeOut(t *testing.T) {
	_, err := CalculateCrossfadePoints(100, 20000, 50, 44100)
	require.Error(t, err)
}

func TestCalculateCrossfadePointsComputesOverlap(t *testing.T) {
	points, err := CalculateCrossfadePoints(1000, 1000, 500, 44100)
	require.NoError(t, err)

	assert.Equal(t, int64(0), points.StartA)
	assert.Equal(t, int64(0), points.FadeInStart)
	assert.Equal(t, msToSamples(1000, 44100), points.LeadInEnd)
	assert.Equal(t, msToSamples(500, 44100), points.LeadOutStart)
	assert.Equal(t, msToSamples(1500, 44100), points.FadeOutEnd)
	assert.Equal(t, int64(-1), points.EndB)
}

func TestCalculateCrossfadePointsClampsLeadOutStartAtZero(t *testing.T) {
	points, err := CalculateCrossfadePoints(100, 100, 10000, 44100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), points.LeadOutStart)
}
