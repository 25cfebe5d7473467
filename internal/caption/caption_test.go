package caption

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_UniformWordTiming(t *testing.T) {
	words := []string{"hello", "ominous", "one"}

	tests := []struct {
		elapsed time.Duration
		index   int
		word    string
	}{
		{0, 0, "hello"},
		{900 * time.Millisecond, 0, "hello"},
		{time.Second, 1, "ominous"},
		{1999 * time.Millisecond, 1, "ominous"},
		{2100 * time.Millisecond, 2, "one"},
		{10 * time.Second, 2, "one"},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			s := New(words, 3*time.Second)
			st, changed := s.Sample(tt.elapsed)
			assert.True(t, changed)
			assert.Equal(t, tt.index, st.WordIndex)
			assert.Equal(t, tt.word, st.Word)
			assert.Equal(t, 3, st.WordCount)
		})
	}
}

func TestSample_Monotonic(t *testing.T) {
	s := New([]string{"a", "b", "c", "d"}, 4*time.Second)

	st, changed := s.Sample(2500 * time.Millisecond)
	require.True(t, changed)
	assert.Equal(t, 2, st.WordIndex)

	st, changed = s.Sample(500 * time.Millisecond)
	assert.False(t, changed)
	assert.Equal(t, 2, st.WordIndex)

	st, changed = s.Sample(2900 * time.Millisecond)
	assert.False(t, changed)
	assert.Equal(t, 2, st.WordIndex)

	st, changed = s.Sample(3 * time.Second)
	assert.True(t, changed)
	assert.Equal(t, 3, st.WordIndex)
	assert.True(t, st.Done)
}

func TestSample_TerminatesAtLastWord(t *testing.T) {
	s := New([]string{"one", "two"}, time.Second)

	st, _ := s.Sample(600 * time.Millisecond)
	assert.Equal(t, 1, st.WordIndex)
	assert.True(t, st.Done)
	assert.True(t, s.Done())

	st, changed := s.Sample(5 * time.Second)
	assert.False(t, changed)
	assert.Equal(t, 1, st.WordIndex)
}

func TestSample_ZeroTotalJumpsToLastWord(t *testing.T) {
	s := New([]string{"a", "b", "c", "d", "e"}, 0)
	st, changed := s.Sample(0)
	assert.True(t, changed)
	assert.Equal(t, 4, st.WordIndex)
	assert.Equal(t, "e", st.Word)
	assert.True(t, st.Done)
}

func TestSample_NoWords(t *testing.T) {
	s := New(nil, 3*time.Second)
	assert.True(t, s.Done())

	st, changed := s.Sample(time.Second)
	assert.False(t, changed)
	assert.Equal(t, State{Done: true}, st)
}

func TestSample_SingleWordIsTerminalOnFirstSample(t *testing.T) {
	s := New([]string{"hi"}, time.Second)
	st, changed := s.Sample(0)
	assert.True(t, changed)
	assert.Equal(t, "hi", st.Word)
	assert.True(t, st.Done)
}

func TestSample_LargeElapsedDoesNotOverflow(t *testing.T) {
	words := make([]string, 1000)
	s := New(words, time.Hour)

	st, _ := s.Sample(time.Duration(math.MaxInt64))
	assert.Equal(t, 999, st.WordIndex)
}

func TestSample_NegativeElapsed(t *testing.T) {
	s := New([]string{"a", "b"}, time.Second)
	st, changed := s.Sample(-time.Second)
	assert.True(t, changed)
	assert.Equal(t, 0, st.WordIndex)
}

func TestStop(t *testing.T) {
	s := New([]string{"a", "b", "c"}, 3*time.Second)
	_, _ = s.Sample(1500 * time.Millisecond)
	s.Stop()

	st, changed := s.Sample(2500 * time.Millisecond)
	assert.False(t, changed)
	assert.Equal(t, 1, st.WordIndex)
	assert.Equal(t, st, s.State())
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"hello", "ominous", "one"}, Words("  hello ominous\tone\n"))
	assert.Empty(t, Words("   "))
}

func TestNew_CopiesWords(t *testing.T) {
	words := []string{"a", "b"}
	s := New(words, time.Second)
	words[0] = "z"
	assert.Equal(t, "a", s.State().Word)
}
