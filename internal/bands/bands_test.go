package bands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarsync/internal/spectrum"
)

func filled(n int, v uint8) spectrum.Snapshot {
	s := make(spectrum.Snapshot, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestThirds_Boundaries(t *testing.T) {
	layout, err := Thirds(512)
	require.NoError(t, err)

	assert.Equal(t, []Band{
		{Name: Bass, Lo: 0, Hi: 171},
		{Name: Mid, Lo: 171, Hi: 342},
		{Name: Treble, Lo: 342, Hi: 512},
	}, layout.Bands)

	small, err := Thirds(3)
	require.NoError(t, err)
	for _, b := range small.Bands {
		assert.Equal(t, 1, b.Width())
	}

	_, err = Thirds(2)
	assert.ErrorIs(t, err, ErrEmptyBand)
}

func TestQuarters(t *testing.T) {
	layout, err := Quarters(512)
	require.NoError(t, err)
	assert.Equal(t, []string{Bass, Mid, Treble}, layout.Names())
	assert.Equal(t, Band{Name: Mid, Lo: 128, Hi: 256}, layout.Bands[1])
	assert.Equal(t, 256, layout.Bands[2].Width())
}

func TestNewLayout_Validation(t *testing.T) {
	tests := []struct {
		name    string
		bins    int
		bands   []Band
		wantErr error
	}{
		{"empty band", 8, []Band{{Name: "a", Lo: 3, Hi: 3}}, ErrEmptyBand},
		{"inverted band", 8, []Band{{Name: "a", Lo: 5, Hi: 2}}, ErrEmptyBand},
		{"past end", 8, []Band{{Name: "a", Lo: 0, Hi: 9}}, ErrInvalidLayout},
		{"negative", 8, []Band{{Name: "a", Lo: -1, Hi: 2}}, ErrInvalidLayout},
		{"duplicate", 8, []Band{{Name: "a", Lo: 0, Hi: 2}, {Name: "a", Lo: 2, Hi: 4}}, ErrInvalidLayout},
		{"unnamed", 8, []Band{{Lo: 0, Hi: 2}}, ErrInvalidLayout},
		{"no bands", 8, nil, ErrInvalidLayout},
		{"no bins", 0, []Band{{Name: "a", Lo: 0, Hi: 1}}, ErrInvalidLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.bins, tt.bands...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// overlapping bands are allowed
	_, err := NewLayout(8, Band{Name: "low", Lo: 0, Hi: 6}, Band{Name: "voice", Lo: 2, Hi: 8})
	assert.NoError(t, err)
}

func TestExtract(t *testing.T) {
	layout, err := Thirds(512)
	require.NoError(t, err)

	t.Run("all max is one", func(t *testing.T) {
		e, err := Extract(filled(512, 255), layout)
		require.NoError(t, err)
		require.Equal(t, 3, e.Len())
		for i := range e.Len() {
			assert.Equal(t, 1.0, e.Value(i), e.Name(i))
		}
	})

	t.Run("all zero is zero", func(t *testing.T) {
		e, err := Extract(spectrum.Zero(512), layout)
		require.NoError(t, err)
		for i := range e.Len() {
			assert.Zero(t, e.Value(i))
		}
	})

	t.Run("only bass bins", func(t *testing.T) {
		snap := spectrum.Zero(512)
		for i := 0; i < 171; i++ {
			snap[i] = 51
		}
		e, err := Extract(snap, layout)
		require.NoError(t, err)

		bass, ok := e.Get(Bass)
		require.True(t, ok)
		assert.InDelta(t, 0.2, bass, 1e-12)
		mid, _ := e.Get(Mid)
		assert.Zero(t, mid)
		_, ok = e.Get("sub")
		assert.False(t, ok)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Extract(spectrum.Zero(256), layout)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}
