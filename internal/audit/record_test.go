package audit

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetails(t *testing.T) {
	assert.Equal(t, "Match: bit.ly", MatchDetails("bit.ly"))
	assert.Equal(t, "Karma: 100, Limit: 1", LimitDetails(100, 1))
	assert.Equal(t, "Banned u/spammer for 7 days. Reason: spam", BanDetails("spammer", 7, "spam"))
	assert.Equal(t, "Banned u/spammer for permanent days. Reason: spam", BanDetails("spammer", 0, "spam"))
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{total: 0, size: 50, want: 1},
		{total: 1, size: 50, want: 1},
		{total: 50, size: 50, want: 1},
		{total: 51, size: 50, want: 2},
		{total: 10, size: 0, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.total, tt.size), "%d/%d", tt.total, tt.size)
	}
}

func TestUnixSecondsRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 500_000_000, time.UTC)
	got := fromUnixSeconds(unixSeconds(ts))
	assert.WithinDuration(t, ts, got, time.Millisecond)
}

func TestWriteCSV(t *testing.T) {
	records := []Record{
		{
			ID:           2,
			ActionType:   "RULE_LINKSPAM",
			Identity:     "spammer",
			Details:      "Match: bit.ly, tinyurl",
			Timestamp:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			SubmissionID: "abc123",
			Reversible:   true,
		},
		{
			ID:         1,
			ActionType: "BAN_USER",
			Identity:   "mod",
			Details:    "Banned u/x for 3 days. Reason: y",
			Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records, time.UTC))

	want := "ID,Action Type,Username,Details,Time,Submission ID,Can Approve\n" +
		"2,RULE_LINKSPAM,spammer,\"Match: bit.ly, tinyurl\",2024-01-02 03:04:05,abc123,True\n" +
		"1,BAN_USER,mod,Banned u/x for 3 days. Reason: y,2024-01-01 00:00:00,,False\n"
	assert.Equal(t, want, buf.String())
}
