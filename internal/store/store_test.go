package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/core/doctypes"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to TEST_DATABASE_URL and empties the tables.
// Tests are skipped when it is not set.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool, nil)
	require.NoError(t, s.Migrate(ctx))

	_, err = pool.Exec(ctx, "TRUNCATE records, import_runs")
	require.NoError(t, err)
	return s
}

func totals(period, revenue string) core.Fields {
	return core.Fields{
		"period":  core.Period(period),
		"Revenue": core.MustDecimal(revenue),
		"Cost":    core.MustDecimal("1"),
		"Tax":     core.Null(),
	}
}

func TestStore_SubmitChunkReportsConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp, err := s.SubmitChunk(ctx, doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records: []core.Fields{totals("2024-01", "10"), totals("2024-02", "20")},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Results.Success)

	resp, err = s.SubmitChunk(ctx, doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records: []core.Fields{totals("2024-02", "99"), totals("2024-03", "30")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Results.Success)
	require.Len(t, resp.Results.Conflicts, 1)
	assert.Equal(t, 0, resp.Results.Conflicts[0].Index)
	assert.Equal(t, "2024-02", resp.Results.Conflicts[0].NaturalKey)

	existing, found, err := s.FetchExisting(ctx, doctypes.PeriodTotalsKey, "2024-02")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "20", existing["Revenue"].String(), "conflicting record must not overwrite")
	assert.True(t, existing["Tax"].IsNull())
}

func TestStore_SubmitChunkOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SubmitChunk(ctx, doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records: []core.Fields{totals("2024-01", "10")},
	})
	require.NoError(t, err)

	resp, err := s.SubmitChunk(ctx, doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records:           []core.Fields{totals("2024-01", "11")},
		OverrideConflicts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Results.Success)
	assert.Empty(t, resp.Results.Conflicts)

	existing, _, err := s.FetchExisting(ctx, doctypes.PeriodTotalsKey, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, "11", existing["Revenue"].String())
}

func TestStore_SubmitChunkMissingKeyFailsAlone(t *testing.T) {
	s := newTestStore(t)

	noKey := totals("2024-01", "10")
	noKey["period"] = core.Null()

	resp, err := s.SubmitChunk(context.Background(), doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records: []core.Fields{noKey, totals("2024-02", "20")},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Results.Success)
	require.Len(t, resp.Results.Failed, 1)
	assert.Equal(t, 0, resp.Results.Failed[0].Index)
}

func TestStore_SubmitChunkRejectsInvalidValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	badPeriod := totals("2024-01", "10")
	badPeriod["period"] = core.Text("garbage")
	negative := totals("2024-02", "10")
	negative["Revenue"] = core.Text("-5")
	badExtra := totals("2024-03", "10")
	badExtra["Bonus"] = core.Text("n/a")

	resp, err := s.SubmitChunk(ctx, doctypes.PeriodTotalsKey, core.ChunkRequest{
		Records: []core.Fields{badPeriod, negative, badExtra, totals("2024-04", "40")},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, resp.Results.Success)
	require.Len(t, resp.Results.Failed, 3)
	assert.Contains(t, resp.Results.Failed[0].Reason, "invalid date format")
	assert.Contains(t, resp.Results.Failed[1].Reason, "invalid amount")
	assert.Contains(t, resp.Results.Failed[2].Reason, "Bonus")

	for _, key := range []string{"garbage", "2024-02", "2024-03"} {
		_, found, err := s.FetchExisting(ctx, doctypes.PeriodTotalsKey, key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
}

func TestStore_UnknownDocType(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SubmitChunk(context.Background(), "nope", core.ChunkRequest{})
	assert.ErrorIs(t, err, core.ErrUnknownDocType)
}

func TestStore_OverrideRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	resp, err := s.OverrideRecord(ctx, doctypes.PeriodTotalsKey, "2024-05", totals("2024-05", "7"))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = s.OverrideRecord(ctx, doctypes.PeriodTotalsKey, "2024-06", totals("2024-05", "7"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "does not match")

	_, found, err := s.FetchExisting(ctx, doctypes.PeriodTotalsKey, "2024-06")
	require.NoError(t, err)
	assert.False(t, found)

	invalid := totals("2024-05", "7")
	invalid["Cost"] = core.Text("-1")
	resp, err = s.OverrideRecord(ctx, doctypes.PeriodTotalsKey, "2024-05", invalid)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid amount")

	existing, _, err := s.FetchExisting(ctx, doctypes.PeriodTotalsKey, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, "1", existing["Cost"].String(), "rejected override must not be written")
}

func TestStore_ImportRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Millisecond)
	recent := time.Now().UTC().Truncate(time.Millisecond)

	runs := []core.ImportRun{
		{ID: uuid.NewString(), DocType: doctypes.PeriodTotalsKey, State: core.StateCompleted, Severity: core.SeverityLow, Total: 3, Success: 3, StartedAt: old, FinishedAt: old},
		{ID: uuid.NewString(), DocType: doctypes.PeriodTotalsKey, State: core.StateCancelled, Severity: core.SeverityMedium, Total: 25, Success: 10, Skipped: 15, ClientIP: "10.0.0.7:5123", FileName: "q1.csv", StartedAt: recent, FinishedAt: recent},
	}
	for _, r := range runs {
		require.NoError(t, s.RecordRun(ctx, r))
	}
	require.NoError(t, s.RecordRun(ctx, runs[0]), "recording twice is a no-op")

	got, err := s.ListRuns(ctx, core.RunFilter{DocType: doctypes.PeriodTotalsKey})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, runs[1].ID, got[0].ID, "newest first")
	assert.Equal(t, "10.0.0.7", got[0].ClientIP)
	assert.Equal(t, "q1.csv", got[0].FileName)
	assert.Equal(t, 15, got[0].Skipped)

	purged, err := s.PurgeRuns(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	got, err = s.ListRuns(ctx, core.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseClientIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"192.168.1.4", "192.168.1.4"},
		{"192.168.1.4:8080", "192.168.1.4"},
		{"[::1]:8080", "::1"},
		{"not-an-ip", ""},
	}
	for _, tt := range tests {
		addr := parseClientIP(tt.in)
		got := ""
		if addr != nil {
			got = addr.String()
		}
		if got != tt.want {
			t.Errorf("parseClientIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
