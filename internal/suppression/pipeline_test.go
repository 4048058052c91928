package suppression

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/metrics"
)

type historyRow struct {
	refID string
	code  string
	date  string
}

// fakeWarehouse answers the pipeline's native queries from an in-memory
// history table.
type fakeWarehouse struct {
	table      *metabase.Table
	tableErr   error
	datasetErr error
	failInsert map[int]bool // 1-based insert call numbers that fail
	rows       []historyRow
	queries    []string
	inserts    int
}

var (
	sinceRe = regexp.MustCompile(`export_date >= '(\d{4}-\d{2}-\d{2})'`)
	codeRe  = regexp.MustCompile(`campaign_code = '([^']*)'`)
	valueRe = regexp.MustCompile(`\('([^']*)','([^']*)','([^']*)'\)`)
)

func (f *fakeWarehouse) Table(_ context.Context, id int) (*metabase.Table, error) {
	if f.tableErr != nil {
		return nil, f.tableErr
	}
	return f.table, nil
}

func (f *fakeWarehouse) Dataset(_ context.Context, req metabase.DatasetRequest) (*metabase.DatasetResult, error) {
	sql := req.Native.Query
	f.queries = append(f.queries, sql)
	if f.datasetErr != nil {
		return nil, f.datasetErr
	}

	if strings.HasPrefix(sql, "INSERT") {
		f.inserts++
		if f.failInsert[f.inserts] {
			return nil, errors.New("connection reset")
		}
		for _, m := range valueRe.FindAllStringSubmatch(sql, -1) {
			f.rows = append(f.rows, historyRow{m[1], m[2], m[3]})
		}
		return nil, &metabase.QueryError{Message: "No results were returned by the query."}
	}

	var since, code string
	if m := sinceRe.FindStringSubmatch(sql); m != nil {
		since = m[1]
	}
	if m := codeRe.FindStringSubmatch(sql); m != nil {
		code = m[1]
	}

	res := &metabase.DatasetResult{}
	seen := map[string]bool{}
	for _, r := range f.rows {
		if (since != "" && r.date >= since) || (code != "" && r.code == code) {
			if !seen[r.refID] {
				seen[r.refID] = true
				res.Data.Rows = append(res.Data.Rows, []any{r.refID})
			}
		}
	}
	return res, nil
}

var fixedNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

func newPipeline(f *fakeWarehouse, batch int) *Pipeline {
	p := NewPipeline(f, batch)
	p.now = func() time.Time { return fixedNow }
	return p
}

func history() *History {
	return &History{TableID: 9, DatabaseID: 2, Name: "campaign_history"}
}

func TestResolveHistoryTable(t *testing.T) {
	f := &fakeWarehouse{table: &metabase.Table{ID: 9, DBID: 2, Name: "campaign_history", Schema: "public"}}
	h := newPipeline(f, 0).ResolveHistoryTable(context.Background(), 9)
	require.NotNil(t, h)
	assert.Equal(t, 2, h.DatabaseID)
	assert.Equal(t, "public.campaign_history", h.Name)
}

func TestResolveHistoryTableFailures(t *testing.T) {
	p := newPipeline(&fakeWarehouse{tableErr: errors.New("404")}, 0)
	assert.Nil(t, p.ResolveHistoryTable(context.Background(), 9))
	assert.Nil(t, p.ResolveHistoryTable(context.Background(), 0))

	p = newPipeline(&fakeWarehouse{table: &metabase.Table{ID: 9}}, 0)
	assert.Nil(t, p.ResolveHistoryTable(context.Background(), 9), "table without db or name")
}

func TestBuildSuppressionSetWithoutConditionSkipsQuery(t *testing.T) {
	f := &fakeWarehouse{}
	set := newPipeline(f, 0).BuildSuppressionSet(context.Background(), history(), 0, "")
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, f.queries)

	set = newPipeline(f, 0).BuildSuppressionSet(context.Background(), nil, 30, "L003")
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, f.queries)
}

func TestBuildSuppressionSetFailsOpen(t *testing.T) {
	f := &fakeWarehouse{datasetErr: &metabase.APIError{Method: "POST", Path: "/dataset", StatusCode: 500, Body: "boom"}}
	set := newPipeline(f, 0).BuildSuppressionSet(context.Background(), history(), 7, "L003")
	assert.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
	assert.Len(t, f.queries, 1)
}

func TestBuildSuppressionSetLookbackOrCampaign(t *testing.T) {
	f := &fakeWarehouse{rows: []historyRow{
		{"Yesterday@Example.com", "L003", "2026-10-14"},
		{"old@example.com", "L001", "2026-09-15"},
		{"oldsame@example.com", "L003", "2026-08-01"},
		{"week@example.com", "L002", "2026-10-08"},
	}}
	set := newPipeline(f, 0).BuildSuppressionSet(context.Background(), history(), 7, "L003")

	assert.True(t, set.Has("yesterday@example.com"))
	assert.True(t, set.Has("YESTERDAY@example.com "))
	assert.True(t, set.Has("oldsame@example.com"), "same campaign code at any date")
	assert.True(t, set.Has("week@example.com"), "lookback boundary is inclusive")
	assert.False(t, set.Has("old@example.com"))

	require.Len(t, f.queries, 1)
	assert.Equal(t,
		"SELECT DISTINCT ref_id FROM campaign_history WHERE (export_date >= '2026-10-08' OR campaign_code = 'L003')",
		f.queries[0])
}

func TestBuildSuppressionSetSingleCondition(t *testing.T) {
	f := &fakeWarehouse{}
	p := newPipeline(f, 0)

	p.BuildSuppressionSet(context.Background(), history(), 0, "O'Brien")
	p.BuildSuppressionSet(context.Background(), history(), 30, "")

	require.Len(t, f.queries, 2)
	assert.Equal(t, "SELECT DISTINCT ref_id FROM campaign_history WHERE campaign_code = 'O''Brien'", f.queries[0])
	assert.Equal(t, "SELECT DISTINCT ref_id FROM campaign_history WHERE export_date >= '2026-09-15'", f.queries[1])
}

func TestFilter(t *testing.T) {
	set := Set{"a@example.com": {}, "c@example.com": {}}
	items := []string{"A@example.com", "b@example.com", "c@example.com", "d@example.com"}

	kept, removed := Filter(items, set, func(s string) string { return s })
	assert.Equal(t, []string{"b@example.com", "d@example.com"}, kept)
	assert.Equal(t, 2, removed)

	kept, removed = Filter(items, Set{}, func(s string) string { return s })
	assert.Len(t, kept, 4)
	assert.Zero(t, removed)
}

func TestLogExportedChunksAndContinuesPastFailures(t *testing.T) {
	f := &fakeWarehouse{failInsert: map[int]bool{2: true}}
	p := newPipeline(f, 2)

	ids := []string{"a@x.com", "B@x.com", "c@x.com", "d@x.com", "e@x.com", "a@x.com"}
	logged := p.LogExported(context.Background(), history(), "L003", ids)

	assert.Equal(t, 3, f.inserts, "five unique ids in batches of two")
	assert.Equal(t, 3, logged, "second batch failed, others written")
	require.Len(t, f.rows, 3)
	assert.Equal(t, historyRow{"a@x.com", "L003", "2026-10-15"}, f.rows[0])
	assert.Equal(t, "b@x.com", f.rows[1].refID)
	assert.Equal(t, "e@x.com", f.rows[2].refID)
}

func TestLogExportedNoOps(t *testing.T) {
	f := &fakeWarehouse{}
	p := newPipeline(f, 0)

	assert.Zero(t, p.LogExported(context.Background(), history(), "", []string{"a@x.com"}))
	assert.Zero(t, p.LogExported(context.Background(), history(), "L003", nil))
	assert.Zero(t, p.LogExported(context.Background(), nil, "L003", []string{"a@x.com"}))
	assert.Empty(t, f.queries)
}

func TestInsertQueryEscapesLiterals(t *testing.T) {
	q, err := insertQuery(qualifiedName("ops", "campaign history"), "L'3", fixedNow, []string{"o'neil@x.com"})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO ops."campaign history" (ref_id,campaign_code,export_date) VALUES ('o''neil@x.com','L''3','2026-10-15')`,
		q)
}

func TestLiteralsRejectBackslash(t *testing.T) {
	_, err := suppressionQuery("campaign_history", time.Time{}, `L003\' OR 1=1 --`)
	assert.ErrorIs(t, err, ErrUnsafeLiteral)

	_, err = insertQuery("campaign_history", `L003\`, fixedNow, []string{"a@x.com"})
	assert.ErrorIs(t, err, ErrUnsafeLiteral)

	_, err = insertQuery("campaign_history", "L003", fixedNow, []string{`evil\@x.com`})
	assert.ErrorIs(t, err, ErrUnsafeLiteral)
}

func TestBuildSuppressionSetUnsafeCodeQueriesNothing(t *testing.T) {
	f := &fakeWarehouse{rows: []historyRow{{"a@x.com", "L003", "2026-10-14"}}}
	set := newPipeline(f, 0).BuildSuppressionSet(context.Background(), history(), 0, `L003\' OR 1=1 --`)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, f.queries)
}

func TestLogExportedSkipsUnsafeIdentifiers(t *testing.T) {
	f := &fakeWarehouse{}
	p := newPipeline(f, 2)

	logged := p.LogExported(context.Background(), history(), "L003", []string{"a@x.com", `b\@x.com`, "c@x.com"})
	assert.Equal(t, 2, logged)
	assert.Equal(t, 1, f.inserts, "both safe ids fit one batch")
	require.Len(t, f.rows, 2)
	assert.Equal(t, "c@x.com", f.rows[1].refID)

	assert.Zero(t, p.LogExported(context.Background(), history(), `L003\`, []string{"a@x.com"}))
	assert.Equal(t, 1, f.inserts)
}

// blockingWarehouse never answers a dataset query before its context ends.
type blockingWarehouse struct {
	fakeWarehouse
}

func (b *blockingWarehouse) Dataset(ctx context.Context, _ metabase.DatasetRequest) (*metabase.DatasetResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBuildSuppressionSetTimesOut(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	t.Cleanup(func() { metrics.SetGlobal(nil) })

	p := NewPipeline(&blockingWarehouse{}, 0).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	set := p.BuildSuppressionSet(context.Background(), history(), 30, "L003")
	elapsed := time.Since(start)

	assert.Equal(t, 0, set.Len())
	assert.Less(t, elapsed, 2*time.Second, "lookup is bounded by the pipeline timeout")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailOpenTotal.WithLabelValues("build_suppression_set")))
}

func TestTolerate(t *testing.T) {
	got := Tolerate(context.Background(), "op", 7, func(context.Context) (int, error) {
		return 0, errors.New("nope")
	})
	assert.Equal(t, 7, got)

	got = Tolerate(context.Background(), "op", 7, func(context.Context) (int, error) {
		return 3, nil
	})
	assert.Equal(t, 3, got)
}
