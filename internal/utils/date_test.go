package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayDate(t *testing.T) {
	parsed, err := ParsePlayDate("2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), parsed)
}

func TestParsePlayDate_RejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "14/03/2026", "2026-3-14", "not a date"} {
		_, err := ParsePlayDate(value)
		assert.Error(t, err, "value %q", value)
	}
}

func TestFormatPlayDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	in := time.Date(2026, 3, 14, 22, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-15", FormatPlayDate(in))
}

func TestPlayDateRoundTrip(t *testing.T) {
	parsed, err := ParsePlayDate("2026-12-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-12-31", FormatPlayDate(parsed))
}
