package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var testTotals = DocumentType{
	Info: DocumentInfo{Key: "test_totals", Label: "Test totals"},
	FieldSpecs: []FieldSpec{
		{Name: "period", Type: FieldPeriod, Required: true},
		{Name: "Revenue", Type: FieldNumeric, Required: true},
	},
	NaturalKey:  []string{"period"},
	OpenColumns: true,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func periodFor(i int) string {
	return fmt.Sprintf("%04d-%02d", 2000+i/12, i%12+1)
}

// makeRecords builds n valid records with distinct periods.
func makeRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{
			Fields: Fields{
				"period":  Period(periodFor(i)),
				"Revenue": MustDecimal(fmt.Sprint(i * 10)),
			},
			SourceRow: i + 2,
		}
	}
	return recs
}

// csvWithBadRows builds a document of total rows where the first bad rows
// carry a negative amount.
func csvWithBadRows(total, bad int) []byte {
	var b strings.Builder
	b.WriteString("period,Revenue\n")
	for i := 0; i < total; i++ {
		amount := "100"
		if i < bad {
			amount = "-5"
		}
		fmt.Fprintf(&b, "%s,%s\n", periodFor(i), amount)
	}
	return []byte(b.String())
}

// fakeBackend stores records by natural key in memory and reports existing
// keys as conflicts unless the request overrides them.
type fakeBackend struct {
	mu        sync.Mutex
	def       DocumentType
	stored    map[string]Fields
	requests  []ChunkRequest
	overrides []string

	// Optional hooks. call is the 1-based SubmitChunk call number.
	submitErr   func(call int) error
	onSubmit    func(call int)
	failIndex   map[int]string // per-chunk index -> reason, applied to every chunk
	extraSucc   int
	fetchErr    error
	overrideErr error
}

func newFakeBackend(def DocumentType) *fakeBackend {
	return &fakeBackend{def: def, stored: make(map[string]Fields)}
}

func (b *fakeBackend) seed(recs ...Record) {
	for _, r := range recs {
		b.stored[b.def.KeyOf(r.Fields)] = r.Fields
	}
}

func (b *fakeBackend) SubmitChunk(ctx context.Context, docType string, req ChunkRequest) (ChunkResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	call := len(b.requests)
	b.mu.Unlock()

	if b.onSubmit != nil {
		b.onSubmit(call)
	}
	if b.submitErr != nil {
		if err := b.submitErr(call); err != nil {
			return ChunkResponse{}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	res := ChunkResults{Total: len(req.Records), Failed: []ChunkFailure{}, Conflicts: []ChunkConflict{}}
	for i, fields := range req.Records {
		if reason, ok := b.failIndex[i]; ok {
			res.Failed = append(res.Failed, ChunkFailure{Index: i, Reason: reason})
			continue
		}
		key := b.def.KeyOf(fields)
		if existing, ok := b.stored[key]; ok && !req.OverrideConflicts {
			res.Conflicts = append(res.Conflicts, ChunkConflict{Index: i, NaturalKey: key, Data: existing})
			continue
		}
		b.stored[key] = fields
		res.Success++
	}
	res.Success += b.extraSucc

	return ChunkResponse{Success: true, Results: res}, nil
}

func (b *fakeBackend) OverrideRecord(ctx context.Context, docType, naturalKey string, fields Fields) (OverrideResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.overrides = append(b.overrides, naturalKey)
	if b.overrideErr != nil {
		return OverrideResponse{}, b.overrideErr
	}
	b.stored[naturalKey] = fields
	return OverrideResponse{Success: true}, nil
}

func (b *fakeBackend) FetchExisting(ctx context.Context, docType, naturalKey string) (Fields, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fetchErr != nil {
		return nil, false, b.fetchErr
	}
	f, ok := b.stored[naturalKey]
	return f, ok, nil
}

// recordingProvider answers from a script and records what it was shown.
type recordingProvider struct {
	mu      sync.Mutex
	answers []Decision
	seen    []Comparison
}

func (p *recordingProvider) Decide(ctx context.Context, cmp Comparison) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen = append(p.seen, cmp)
	if len(p.answers) == 0 {
		return DecisionSkipOne, nil
	}
	d := p.answers[0]
	p.answers = p.answers[1:]
	return d, nil
}
