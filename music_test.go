package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"0", 0},
		{"45", 45 * time.Second},
		{"45s", 45 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseDuration("abc")
	assert.Error(t, err)
	_, err = ParseDuration("1m30s")
	assert.Error(t, err, "compound values go through time.ParseDuration instead")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "∞", FormatDuration(0))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", FormatDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h 10m", FormatDuration(2*time.Hour+10*time.Minute))
}

func TestFilterPresets(t *testing.T) {
	for _, name := range []string{"bassboost", "nightcore", "vaporwave", "8d", "karaoke", "tremolo", "vibrato", "lowpass"} {
		_, ok := filterPresets[name]
		assert.True(t, ok, "missing preset %s", name)
	}

	assert.NotEmpty(t, filterPresets["bassboost"].Equalizer)
	assert.Equal(t, 1.2, filterPresets["nightcore"].Timescale["speed"])
	assert.Equal(t, 0.85, filterPresets["vaporwave"].Timescale["speed"])
	assert.Equal(t, 0.2, filterPresets["8d"].Rotation["rotationHz"])
	assert.Equal(t, 20.0, filterPresets["lowpass"].LowPass["smoothing"])
}

func TestTrackLine(t *testing.T) {
	track := testTrack("a very long title")
	line := trackLine(track)
	assert.Contains(t, line, "a very long title")
	assert.Contains(t, line, track.Info.URI)
	assert.Contains(t, line, "03:00")
}
