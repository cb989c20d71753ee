package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhone_USWithRegionHint(t *testing.T) {
	p, ok := Phone("(415) 555-2671", "US")
	require.True(t, ok)
	assert.Equal(t, "+14155552671", p.E164)
	assert.Equal(t, "US", p.Region)
	assert.Equal(t, "(415) 555-2671", p.Raw)
}

func TestPhone_InternationalNoHint(t *testing.T) {
	p, ok := Phone("+44 20 7946 0958", "")
	require.True(t, ok)
	assert.Equal(t, "+442079460958", p.E164)
	assert.Equal(t, "GB", p.Region)
}

func TestPhone_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a phone", "12345", "+1 111 111 1111"} {
		_, ok := Phone(raw, "US")
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestDateTime_Formats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-01-25", time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)},
		{"2026-01-25T14:30:00Z", time.Date(2026, 1, 25, 14, 30, 0, 0, time.UTC)},
		{"January 25, 2026", time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)},
		{"25 Jan 2026 14:30", time.Date(2026, 1, 25, 14, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := DateTime(tc.in)
		require.True(t, ok, "parse %q", tc.in)
		assert.True(t, tc.want.Equal(got), "parse %q: got %v", tc.in, got)
	}
}

func TestDateTime_Garbage(t *testing.T) {
	for _, in := range []string{"", "soon", "the 3rd of never"} {
		_, ok := DateTime(in)
		assert.False(t, ok, "expected %q to fail", in)
	}
}

func TestDate_TruncatesTime(t *testing.T) {
	d, ok := Date("2026-01-25T18:45:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC), d)
}
