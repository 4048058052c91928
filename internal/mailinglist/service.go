package mailinglist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/detect"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/distlock"
	"github.com/ignite/list-builder/internal/pkg/logger"
	"github.com/ignite/list-builder/internal/segmentation"
	"github.com/ignite/list-builder/internal/suppression"
)

// maxFanOut bounds concurrent metadata and sample requests.
const maxFanOut = 8

// ErrCampaignBusy is returned when another logged export of the same
// campaign is still running.
var ErrCampaignBusy = errors.New("mailinglist: another export of this campaign is in progress")

// BI is the subset of the BI tool client the service uses.
type BI interface {
	DatabaseMetadata(ctx context.Context, databaseID int) (*metabase.Database, error)
	TableQueryMetadata(ctx context.Context, tableID int) (*metabase.Table, error)
	Table(ctx context.Context, tableID int) (*metabase.Table, error)
	Dataset(ctx context.Context, req metabase.DatasetRequest) (*metabase.DatasetResult, error)
}

// Target selects the rows of one table.
type Target struct {
	DatabaseID int
	TableID    int
	Filters    []segmentation.FilterValue
}

// CampaignTarget is a Target exported under a campaign code with
// suppression against the history table.
type CampaignTarget struct {
	Target
	HistoryTableID int
	CampaignCode   string
	LookbackDays   int
	LogHistory     bool
}

// Result is a fetched mailing list.
type Result struct {
	Columns     []string          `json:"columns"`
	Entries     []*Entry          `json:"rows"`
	Count       int               `json:"count"`
	EmailColumn string            `json:"emailColumn,omitempty"`
	Mapping     map[string]string `json:"mapping,omitempty"`
}

// CampaignResult is a suppressed campaign export. Total is the candidate
// count before suppression; Suppressed counts rows removed from the
// fetched set.
type CampaignResult struct {
	*Result
	Total              int  `json:"total"`
	Suppressed         int  `json:"suppressed"`
	SuppressionSetSize int  `json:"suppressionSetSize"`
	Logged             int  `json:"logged"`
	HistoryAvailable   bool `json:"historyAvailable"`
}

// ValueCount is one entry of a field's value distribution.
type ValueCount struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// Service builds mailing lists from filtered tables.
type Service struct {
	bi       BI
	detector *detect.Detector
	pipeline *suppression.Pipeline
	export   config.ExportConfig
	supp     config.SuppressionConfig
	locks    distlock.Factory
}

// NewService wires a Service to a BI tool client.
func NewService(bi BI, export config.ExportConfig, supp config.SuppressionConfig) *Service {
	return &Service{
		bi:       bi,
		detector: detect.New(nil),
		pipeline: suppression.NewPipeline(bi, supp.LogBatchSize).WithTimeout(supp.Timeout()),
		export:   export,
		supp:     supp,
	}
}

// WithLocks serializes logged exports per campaign code.
func (s *Service) WithLocks(f distlock.Factory) *Service {
	s.locks = f
	return s
}

// Pipeline exposes the suppression pipeline for callers that only need
// the suppression steps.
func (s *Service) Pipeline() *suppression.Pipeline {
	return s.pipeline
}

// Count returns the number of rows matching the target's filters.
func (s *Service) Count(ctx context.Context, t Target) (int, error) {
	q := segmentation.NewQuery(t.TableID).
		Filter(segmentation.Combine(t.Filters)).
		Count()

	res, err := s.bi.Dataset(ctx, metabase.StructuredQuery(t.DatabaseID, q))
	if err != nil {
		return 0, fmt.Errorf("count table %d: %w", t.TableID, err)
	}
	if len(res.Data.Rows) == 0 || len(res.Data.Rows[0]) == 0 {
		return 0, nil
	}
	return toInt(res.Data.Rows[0][0]), nil
}

// Preview returns up to limit matching rows with every column of the table.
func (s *Service) Preview(ctx context.Context, t Target, limit int) (*Result, error) {
	if limit <= 0 {
		limit = s.export.PreviewLimit
	}
	q := segmentation.NewQuery(t.TableID).
		Filter(segmentation.Combine(t.Filters)).
		Limit(limit)

	res, err := s.bi.Dataset(ctx, metabase.StructuredQuery(t.DatabaseID, q))
	if err != nil {
		return nil, fmt.Errorf("preview table %d: %w", t.TableID, err)
	}
	count, err := s.Count(ctx, t)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns: res.ColumnNames(),
		Entries: toEntries(res),
		Count:   count,
	}, nil
}

// Export fetches the mailing list for a target. Detected role columns are
// requested; when no role resolves, the first configured number of fields
// is used instead.
func (s *Service) Export(ctx context.Context, t Target) (*Result, error) {
	table, err := s.bi.TableQueryMetadata(ctx, t.TableID)
	if err != nil {
		return nil, fmt.Errorf("load fields for table %d: %w", t.TableID, err)
	}

	mapping := s.detector.Resolve(table.Fields)
	cols := s.detector.Columns(table.Fields, mapping, s.export.FallbackColumns)
	ids := make([]int, len(cols))
	for i, f := range cols {
		ids[i] = f.ID
	}

	q := segmentation.NewQuery(t.TableID).
		Filter(segmentation.Combine(t.Filters)).
		Fields(ids...).
		Limit(s.export.MaxRows)

	res, err := s.bi.Dataset(ctx, metabase.StructuredQuery(t.DatabaseID, q))
	if err != nil {
		return nil, fmt.Errorf("export table %d: %w", t.TableID, err)
	}
	count, err := s.Count(ctx, t)
	if err != nil {
		return nil, err
	}

	roles := make(map[string]string, len(mapping))
	for role, f := range mapping {
		roles[string(role)] = f.Name
	}

	logger.Info("Export fetched",
		"table_id", t.TableID,
		"filters", len(t.Filters),
		"columns", len(ids),
		"rows", len(res.Data.Rows),
		"count", count)

	return &Result{
		Columns:     res.ColumnNames(),
		Entries:     toEntries(res),
		Count:       count,
		EmailColumn: mapping.Column(detect.RoleEmail),
		Mapping:     roles,
	}, nil
}

// CampaignExport exports a target, removes contacts already mailed within
// the lookback window or under the same campaign code, and optionally logs
// the survivors to the history table. Suppression steps fail open.
func (s *Service) CampaignExport(ctx context.Context, ct CampaignTarget) (*CampaignResult, error) {
	historyID := ct.HistoryTableID
	if historyID == 0 {
		historyID = s.supp.HistoryTableID
	}

	if ct.LogHistory && ct.CampaignCode != "" && s.locks != nil {
		release, err := s.lockCampaign(ctx, ct.CampaignCode)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	history := s.pipeline.ResolveHistoryTable(ctx, historyID)
	set := s.pipeline.BuildSuppressionSet(ctx, history, ct.LookbackDays, ct.CampaignCode)

	res, err := s.Export(ctx, ct.Target)
	if err != nil {
		return nil, err
	}

	emailCol := res.EmailColumn
	kept, removed := suppression.Filter(res.Entries, set, func(e *Entry) string {
		return Identifier(e, emailCol)
	})
	res.Entries = kept

	logged := 0
	if ct.LogHistory {
		ids := make([]string, 0, len(kept))
		for _, e := range kept {
			if id := Identifier(e, emailCol); id != "" {
				ids = append(ids, id)
			}
		}
		logged = s.pipeline.LogExported(ctx, history, ct.CampaignCode, ids)
	}

	metrics.ExportCompleted("campaign", len(kept), removed)
	logger.Info("Campaign export complete",
		"campaign_code", ct.CampaignCode,
		"total", res.Count,
		"exported", len(kept),
		"suppressed", removed,
		"suppression_set", set.Len(),
		"logged", logged)

	return &CampaignResult{
		Result:             res,
		Total:              res.Count,
		Suppressed:         removed,
		SuppressionSetSize: set.Len(),
		Logged:             logged,
		HistoryAvailable:   history != nil,
	}, nil
}

// lockCampaign holds the campaign lock until release is called. A lock
// backend failure is tolerated and the export runs unlocked.
func (s *Service) lockCampaign(ctx context.Context, code string) (func(), error) {
	lock := s.locks("campaign:" + code)
	ok := suppression.Tolerate(ctx, "campaign_lock", true, lock.Acquire)
	if !ok {
		return nil, ErrCampaignBusy
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Campaign lock release failed", "campaign_code", code, "error", err)
		}
	}, nil
}

// Identifier returns the contact identifier used for suppression: the
// email column when known, otherwise the first email-shaped value.
func Identifier(e *Entry, emailCol string) string {
	if emailCol != "" {
		return e.Get(emailCol)
	}
	for _, k := range e.Keys() {
		if v := e.Get(k); detect.LooksLikeEmail(v) {
			return v
		}
	}
	return ""
}

// FieldValues returns the most common values of a field with their counts.
func (s *Service) FieldValues(ctx context.Context, databaseID, tableID, fieldID, limit int) ([]ValueCount, error) {
	if limit <= 0 {
		limit = s.export.SampleValues
	}
	q := segmentation.NewQuery(tableID).
		Breakout(fieldID).
		Count().
		OrderByCountDesc().
		Limit(limit)

	res, err := s.bi.Dataset(ctx, metabase.StructuredQuery(databaseID, q))
	if err != nil {
		return nil, fmt.Errorf("values for field %d: %w", fieldID, err)
	}

	out := make([]ValueCount, 0, len(res.Data.Rows))
	for _, row := range res.Data.Rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, ValueCount{Value: row[0], Count: toInt(row[1])})
	}
	return out, nil
}

// SampleValues fetches value distributions for several fields at once.
// A field whose fetch fails is left out of the result.
func (s *Service) SampleValues(ctx context.Context, databaseID, tableID int, fieldIDs []int) map[int][]ValueCount {
	var (
		mu  sync.Mutex
		out = make(map[int][]ValueCount, len(fieldIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for _, id := range fieldIDs {
		g.Go(func() error {
			values := suppression.Tolerate(gctx, "sample_values", []ValueCount(nil), func(ctx context.Context) ([]ValueCount, error) {
				return s.FieldValues(ctx, databaseID, tableID, id, s.export.SampleValues)
			})
			if values == nil {
				return nil
			}
			mu.Lock()
			out[id] = values
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// SchemaForDatabase returns every table of a database with its fields.
// Field fetches run concurrently; any failure fails the whole call.
func (s *Service) SchemaForDatabase(ctx context.Context, databaseID int) ([]metabase.Table, error) {
	db, err := s.bi.DatabaseMetadata(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("load database %d: %w", databaseID, err)
	}

	tables := make([]metabase.Table, len(db.Tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, t := range db.Tables {
		g.Go(func() error {
			full, err := s.bi.TableQueryMetadata(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("load fields for table %d: %w", t.ID, err)
			}
			tables[i] = *full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func toEntries(res *metabase.DatasetResult) []*Entry {
	cols := res.ColumnNames()
	entries := make([]*Entry, len(res.Data.Rows))
	for i, row := range res.Data.Rows {
		entries[i] = FromRow(cols, row)
	}
	return entries
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}
