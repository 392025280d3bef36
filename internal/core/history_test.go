package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLog is an in-memory ImportLog.
type memLog struct {
	mu       sync.Mutex
	runs     []ImportRun
	purgeErr error
	cutoffs  []time.Time
}

func (l *memLog) RecordRun(ctx context.Context, run ImportRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	return nil
}

func (l *memLog) ListRuns(ctx context.Context, filter RunFilter) ([]ImportRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ImportRun
	for i := len(l.runs) - 1; i >= 0; i-- {
		if filter.DocType == "" || l.runs[i].DocType == filter.DocType {
			out = append(out, l.runs[i])
		}
	}
	return out, nil
}

func (l *memLog) PurgeRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cutoffs = append(l.cutoffs, olderThan)
	if l.purgeErr != nil {
		return 0, l.purgeErr
	}

	kept := l.runs[:0]
	var purged int64
	for _, r := range l.runs {
		if r.FinishedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	l.runs = kept
	return purged, nil
}

func (l *memLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name   string
		result ImportResult
		want   RunSeverity
	}{
		{"clean completion", ImportResult{State: StateCompleted, Total: 3, Success: 3}, SeverityLow},
		{"skipped conflicts only", ImportResult{State: StateCompleted, Total: 3, Success: 1}, SeverityLow},
		{"record failures", ImportResult{State: StateCompleted, Total: 3, Success: 2, Failed: []FailedRecord{{Row: 2}}}, SeverityMedium},
		{"cancelled", ImportResult{State: StateCancelled, Total: 3}, SeverityMedium},
		{"failed", ImportResult{State: StateFailed, Error: "bad header"}, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineSeverity(tt.result))
		})
	}
}

func TestNewImportRun(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	result := ImportResult{
		JobID:   "job-1",
		DocType: testTotals.Info.Key,
		State:   StateCompleted,
		Total:   5,
		Success: 3,
		Failed:  []FailedRecord{{Row: 4, Reason: "constraint violated"}},
	}

	run := NewImportRun(result, "totals.csv", "10.0.0.1", "curl/8", started)

	assert.Equal(t, "job-1", run.ID)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, SeverityMedium, run.Severity)
	assert.Equal(t, started, run.StartedAt)
	assert.False(t, run.FinishedAt.Before(started))
}

func TestService_RecordsHistory(t *testing.T) {
	Clear()
	Register(testTotals)
	t.Cleanup(Clear)

	log := &memLog{}
	s := NewService(newFakeBackend(testTotals), ServiceOptions{
		Coordinator: CoordinatorOptions{PacingInterval: -1},
		History:     log,
	})

	ctx := ContextWithUserAgent(ContextWithClientIP(context.Background(), "10.0.0.1"), "curl/8")
	id, err := s.StartImport(ctx, testTotals.Info.Key, "totals.csv", csvWithBadRows(5, 0), nil)
	require.NoError(t, err)
	waitResult(t, s, id)

	require.Eventually(t, func() bool { return log.count() == 1 }, time.Second, 10*time.Millisecond)

	runs, err := s.History(context.Background(), RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "totals.csv", runs[0].FileName)
	assert.Equal(t, "10.0.0.1", runs[0].ClientIP)
	assert.Equal(t, 5, runs[0].Success)

	_, err = s.History(context.Background(), RunFilter{DocType: "nope"})
	assert.ErrorIs(t, err, ErrUnknownDocType)
}

func TestService_HistoryNotConfigured(t *testing.T) {
	s := newTestService(t, newFakeBackend(testTotals))

	_, err := s.History(context.Background(), RunFilter{})
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestPruneHistory(t *testing.T) {
	now := time.Now()
	log := &memLog{runs: []ImportRun{
		{ID: "old", FinishedAt: now.Add(-48 * time.Hour)},
		{ID: "new", FinishedAt: now.Add(-time.Hour)},
	}}

	pruneHistory(context.Background(), log, PruneConfig{Retention: 24 * time.Hour}.withDefaults(), discardLogger())

	require.Len(t, log.runs, 1)
	assert.Equal(t, "new", log.runs[0].ID)
}

func TestStartHistoryPruner_StopsOnCancel(t *testing.T) {
	log := &memLog{purgeErr: errors.New("database unavailable")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		StartHistoryPruner(ctx, log, PruneConfig{CheckInterval: 10 * time.Millisecond}, discardLogger())
		close(done)
	}()

	// Failures are logged and the pruner keeps ticking.
	require.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.cutoffs) >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestReadDocument(t *testing.T) {
	data, err := ReadDocument(strings.NewReader("period,Revenue\n"), 64)
	require.NoError(t, err)
	assert.Equal(t, "period,Revenue\n", string(data))

	_, err = ReadDocument(bytes.NewReader(make([]byte, 65)), 64)
	require.ErrorIs(t, err, ErrFileTooLarge)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(64), limitErr.Limit)
	assert.Equal(t, int64(65), limitErr.Actual)

	// Exactly at the limit is accepted.
	data, err = ReadDocument(bytes.NewReader(make([]byte, 64)), 64)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}
