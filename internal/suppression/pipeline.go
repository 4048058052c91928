// Package suppression keeps recently-mailed contacts out of new exports.
//
// The campaign history table lives in the warehouse, next to the contact
// tables, with the columns (ref_id text, campaign_code text, export_date
// date). The pipeline reads it through the BI tool's native query endpoint
// to build a suppression set, and appends exported contacts back to it.
// Every step fails open: a broken history table never blocks an export.
package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// DefaultBatchSize is the number of history rows written per INSERT.
const DefaultBatchSize = 500

// Querier is the slice of the BI tool client the pipeline needs.
type Querier interface {
	Table(ctx context.Context, tableID int) (*metabase.Table, error)
	Dataset(ctx context.Context, req metabase.DatasetRequest) (*metabase.DatasetResult, error)
}

// History is a resolved campaign history table.
type History struct {
	TableID    int
	DatabaseID int
	Name       string // physical name, schema-qualified when known
}

// Set holds normalized identifiers.
type Set map[string]struct{}

// Has reports whether id, normalized, is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[Normalize(id)]
	return ok
}

// Len returns the number of identifiers.
func (s Set) Len() int { return len(s) }

// Normalize lowercases and trims an identifier.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Pipeline runs the suppression steps against one BI tool.
type Pipeline struct {
	q         Querier
	batchSize int
	timeout   time.Duration
	now       func() time.Time
}

// NewPipeline creates a pipeline. batchSize <= 0 uses DefaultBatchSize.
func NewPipeline(q Querier, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{q: q, batchSize: batchSize, now: time.Now}
}

// WithTimeout bounds each suppression-set lookup. Zero disables the bound.
func (p *Pipeline) WithTimeout(d time.Duration) *Pipeline {
	p.timeout = d
	return p
}

// ResolveHistoryTable looks up the database and physical name of a history
// table. It returns nil when the table id is unset or the lookup fails.
func (p *Pipeline) ResolveHistoryTable(ctx context.Context, tableID int) *History {
	if tableID <= 0 {
		return nil
	}
	return Tolerate(ctx, "resolve_history_table", (*History)(nil), func(ctx context.Context) (*History, error) {
		t, err := p.q.Table(ctx, tableID)
		if err != nil {
			return nil, err
		}
		if t.DBID == 0 || t.Name == "" {
			return nil, fmt.Errorf("table %d has no database or name", tableID)
		}
		return &History{TableID: tableID, DatabaseID: t.DBID, Name: qualifiedName(t.Schema, t.Name)}, nil
	})
}

// BuildSuppressionSet collects identifiers exported within the last
// lookbackDays days or under campaignCode. With neither condition, or no
// history table, it returns an empty set without querying. Query failures
// also yield an empty set.
func (p *Pipeline) BuildSuppressionSet(ctx context.Context, h *History, lookbackDays int, campaignCode string) Set {
	if h == nil || (lookbackDays <= 0 && campaignCode == "") {
		return Set{}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return Tolerate(ctx, "build_suppression_set", Set{}, func(ctx context.Context) (Set, error) {
		var since time.Time
		if lookbackDays > 0 {
			since = startOfDay(p.now()).AddDate(0, 0, -lookbackDays)
		}
		query, err := suppressionQuery(h.Name, since, campaignCode)
		if err != nil {
			return nil, err
		}

		res, err := p.q.Dataset(ctx, metabase.NativeSQL(h.DatabaseID, query))
		if err != nil {
			return nil, err
		}

		set := make(Set, len(res.Data.Rows))
		for _, row := range res.Data.Rows {
			if len(row) == 0 || row[0] == nil {
				continue
			}
			if id := Normalize(fmt.Sprint(row[0])); id != "" {
				set[id] = struct{}{}
			}
		}

		logger.Info("Built suppression set",
			"history_table", h.Name,
			"lookback_days", lookbackDays,
			"campaign_code", campaignCode,
			"size", len(set))
		return set, nil
	})
}

// Filter drops every item whose identifier is in set and reports how many
// were dropped. Input order is preserved.
func Filter[T any](items []T, set Set, identify func(T) string) ([]T, int) {
	if len(set) == 0 {
		return items, 0
	}
	kept := make([]T, 0, len(items))
	for _, it := range items {
		if set.Has(identify(it)) {
			continue
		}
		kept = append(kept, it)
	}
	return kept, len(items) - len(kept)
}

// LogExported appends (ref_id, campaign_code, today) for each identifier in
// batches. It is a no-op without a history table, campaign code or
// identifiers. A failed batch is logged and skipped; the remaining batches
// still run. It returns the number of rows written.
func (p *Pipeline) LogExported(ctx context.Context, h *History, campaignCode string, refIDs []string) int {
	if h == nil || campaignCode == "" || len(refIDs) == 0 {
		return 0
	}

	ids := uniqueNormalized(refIDs)
	if !safeLiteral(campaignCode) {
		logger.Warn("Skipping history log for unsafe campaign code", "campaign_code", campaignCode)
		return 0
	}
	safe := ids[:0]
	for _, id := range ids {
		if safeLiteral(id) {
			safe = append(safe, id)
		}
	}
	if skipped := len(ids) - len(safe); skipped > 0 {
		logger.Warn("Skipping identifiers that cannot be inlined", "skipped", skipped)
		metrics.FailedOpen("log_exported_unsafe_id")
	}
	ids = safe
	today := startOfDay(p.now())
	logged := 0

	for start := 0; start < len(ids); start += p.batchSize {
		end := start + p.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		n := Tolerate(ctx, "log_exported", 0, func(ctx context.Context) (int, error) {
			query, err := insertQuery(h.Name, campaignCode, today, chunk)
			if err != nil {
				return 0, err
			}
			if _, err := p.q.Dataset(ctx, metabase.NativeSQL(h.DatabaseID, query)); err != nil && !noResultSet(err) {
				return 0, fmt.Errorf("insert rows %d-%d: %w", start, end, err)
			}
			return len(chunk), nil
		})
		logged += n
	}

	metrics.HistoryLogged(logged)
	logger.Info("Logged exported contacts",
		"history_table", h.Name,
		"campaign_code", campaignCode,
		"rows", logged,
		"requested", len(ids))
	return logged
}

// noResultSet reports whether err is the driver complaining that an INSERT
// returned no rows. The BI tool surfaces that as a failed query even though
// the statement ran.
func noResultSet(err error) bool {
	var qErr *metabase.QueryError
	if !errors.As(err, &qErr) {
		return false
	}
	msg := strings.ToLower(qErr.Message)
	return strings.Contains(msg, "no results were returned") ||
		strings.Contains(msg, "did not produce a resultset") ||
		strings.Contains(msg, "does not return a resultset")
}

func uniqueNormalized(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = Normalize(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
