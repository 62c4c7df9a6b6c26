// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Lexigate

package store

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestGenerateAPIKey(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]{64}$`)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)
		assert.Regexp(t, hexPattern, key)
		assert.False(t, seen[key], "keys must not repeat")
		seen[key] = true
	}
}

func TestReportOptionsFilterPeriods(t *testing.T) {
	tests := []struct {
		period  string
		minDays int
		maxDays int
	}{
		{"7days", 6, 8},
		{"30days", 29, 31},
		{"90days", 89, 91},
		{"year", 360, 370},
		{"unknown", 29, 31},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			filter, err := ReportOptions{Period: tt.period}.filter()
			require.NoError(t, err)

			tsFilter, ok := filter["timestamp"].(bson.M)
			require.True(t, ok)
			since, ok := tsFilter["$gte"].(time.Time)
			require.True(t, ok)

			age := time.Since(since)
			assert.GreaterOrEqual(t, age, time.Duration(tt.minDays)*24*time.Hour)
			assert.LessOrEqual(t, age, time.Duration(tt.maxDays)*24*time.Hour)
		})
	}
}

func TestReportOptionsFilterExplicitRange(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	filter, err := ReportOptions{Start: start, End: end}.filter()
	require.NoError(t, err)

	tsFilter := filter["timestamp"].(bson.M)
	assert.Equal(t, start, tsFilter["$gte"])

	// The end day is included whole.
	fullEnd := tsFilter["$lte"].(time.Time)
	assert.Equal(t, 23, fullEnd.Hour())
	assert.Equal(t, 59, fullEnd.Minute())
	assert.Equal(t, 15, fullEnd.Day())
}

func TestReportOptionsFilterClientID(t *testing.T) {
	_, err := ReportOptions{ClientID: "not-an-object-id"}.filter()
	assert.ErrorIs(t, err, ErrInvalidID)

	filter, err := ReportOptions{ClientID: "65f2a0000000000000000001"}.filter()
	require.NoError(t, err)
	assert.Contains(t, filter, "clientId")
}

func TestGroupByType(t *testing.T) {
	records := []UsageRecord{
		{AIType: TierPromptAI, Tokens: 100},
		{AIType: TierPromptAI, Tokens: 50},
		{AIType: TierTranslateAI, TranslationType: "expert", Tokens: 30},
		{AIType: TierTranslateAI, TranslationType: "basic", Tokens: 20},
		{AIType: TierTranslateAI, TranslationType: "", Tokens: 5},
		{AIType: TierSearchAI, Tokens: 70},
	}

	buckets := groupByType(records)

	totals := make(map[string]int64)
	for _, b := range buckets {
		totals[b.Label] = b.Tokens
	}

	assert.Equal(t, int64(150), totals["Prompt AI"])
	assert.Equal(t, int64(30), totals["TAI: Expert"])
	assert.Equal(t, int64(20), totals["TAI: Basic"])
	assert.Equal(t, int64(5), totals["TAI: Unknown"])
	assert.Equal(t, int64(70), totals["Search AI"])
}
