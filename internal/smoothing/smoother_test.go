package smoothing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_FirstCallAdoptsRaw(t *testing.T) {
	s := New()
	v, err := s.Update("bass", 0.7, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)

	got, ok := s.Value("bass")
	assert.True(t, ok)
	assert.Equal(t, 0.7, got)
}

func TestUpdate_Damps(t *testing.T) {
	s := New()
	_, err := s.Update("mouthOpen", 0, 0.1)
	require.NoError(t, err)

	v, err := s.Update("mouthOpen", 1, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-12)

	v, err = s.Update("mouthOpen", 1, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.19, v, 1e-12)
}

func TestUpdate_StaysBetweenPreviousAndRaw(t *testing.T) {
	raws := []float64{0.9, 0.1, 0.5, 1, 0, 0.33, 0.34}
	for _, d := range []float64{0.05, 0.3, 0.8, 1} {
		s := New()
		prev := 0.0
		_, err := s.Update("p", prev, d)
		require.NoError(t, err)
		for _, raw := range raws {
			v, err := s.Update("p", raw, d)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, math.Min(prev, raw)-1e-12)
			assert.LessOrEqual(t, v, math.Max(prev, raw)+1e-12)
			prev = v
		}
	}
}

func TestUpdate_DampingOneTracksExactly(t *testing.T) {
	s := New()
	for _, raw := range []float64{0.1, 0.123456789, 0.9} {
		v, err := s.Update("treble", raw, 1)
		require.NoError(t, err)
		assert.Equal(t, raw, v)
	}
}

func TestUpdate_InvalidDamping(t *testing.T) {
	s := New()
	_, err := s.Update("mid", 0.5, 0.5)
	require.NoError(t, err)

	for _, d := range []float64{0, -0.1, 1.01, math.NaN(), math.Inf(1)} {
		_, err := s.Update("mid", 0.9, d)
		assert.ErrorIs(t, err, ErrInvalidDamping)
	}

	v, _ := s.Value("mid")
	assert.Equal(t, 0.5, v)
}

func TestReset(t *testing.T) {
	s := New()
	_, _ = s.Update("b", 0.2, 1)
	_, _ = s.Update("a", 0.4, 1)
	assert.Equal(t, []string{"a", "b"}, s.Names())

	s.Reset()
	_, ok := s.Value("a")
	assert.False(t, ok)
	assert.Empty(t, s.Names())

	v, err := s.Update("a", 0.9, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, v)
}
