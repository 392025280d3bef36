// Package core provides the validation and batch import pipeline.
//
// This package holds all domain logic independent of any UI or transport
// layer. The web server, the importer CLI and tests all drive it the same way.
//
// # Pipeline
//
// A document flows through these stages:
//
//  1. [CheckFileSize] and [NormalizeText] reject oversized and non-UTF-8 input.
//  2. [ParseTable] splits the text into a header and rows, quote-aware.
//  3. [Validator] checks headers and every cell against a [DocumentType].
//     Rejected rows become warnings until the circuit breaker trips.
//  4. [Coordinator.Run] submits records to a [Backend] in sequential chunks
//     and routes conflicts through a [ConflictDecisionProvider].
//  5. [ResultAggregator] produces the terminal [ImportResult], in which
//     success + skipped + failed always equals total.
//
// # Document Types
//
// Types are registered at init time using [Register]:
//
//	core.Register(core.DocumentType{
//	    Info: core.DocumentInfo{Key: "period_totals", Label: "Periodic category totals"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "period", Type: core.FieldPeriod, Required: true},
//	        {Name: "Revenue", Type: core.FieldNumeric, Required: true},
//	    },
//	    NaturalKey: []string{"period"},
//	})
//
// # Conflicts
//
// A conflict is a record whose natural key is already stored, or repeats an
// earlier record of the same upload. Each one is resolved on its own with one
// of five decisions; skip-all and override-all stick for the rest of the job.
//
// # Error Handling
//
// Every failure wraps a sentinel such as [ErrInvalidDateFormat], so callers
// match with errors.Is. [MapError] turns any error into a coded message for
// display:
//
//   - VAL001-VAL008: Validation errors (cells, columns, circuit breaker)
//   - FILE001-FILE005: File errors (size, format, encoding, rows)
//   - IMP001-IMP008: Import errors (network, busy, job lookup, conflicts)
//   - DB001-DB004: Database errors raised by the PostgreSQL store
package core
