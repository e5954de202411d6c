package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBillingDate_Monthly(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		want    time.Time
		wantErr bool
	}{
		{
			name:  "mid month",
			start: time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC),
			want:  time.Date(2026, time.April, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "jan 31 clamps to feb 28",
			start: time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "jan 31 clamps to feb 29 on leap year",
			start: time.Date(2028, time.January, 31, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "dec rolls into next year",
			start: time.Date(2026, time.December, 15, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBillingDate(tt.start, BillingIntervalMonth)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNextBillingDate_Yearly(t *testing.T) {
	got, err := NextBillingDate(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), BillingIntervalYear)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)), "got %s", got)
}

func TestNextBillingDate_InvalidInterval(t *testing.T) {
	_, err := NextBillingDate(time.Now(), BillingInterval("weekly"))
	assert.Error(t, err)
}

func TestPeriodLabelFor(t *testing.T) {
	assert.Equal(t, PeriodLabel("2026-08"), PeriodLabelFor(time.Date(2026, time.August, 31, 23, 59, 0, 0, time.UTC)))

	// Label follows UTC, not the local zone of the input.
	ist := time.FixedZone("IST", 5*60*60+30*60)
	assert.Equal(t, PeriodLabel("2026-08"), PeriodLabelFor(time.Date(2026, time.September, 1, 3, 0, 0, 0, ist)))
}
