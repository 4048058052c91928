package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/list-builder/internal/llm"
	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/pkg/httputil"
	"github.com/ignite/list-builder/internal/segmentation"
)

// maxSampledFields caps how many text columns get value samples in the
// prompt.
const maxSampledFields = 20

type analyzeResponse struct {
	*llm.SuggestionResult
	Filters []segmentation.FilterValue `json:"filters,omitempty"`
}

// Analyze asks the model for audience segments.
//
//	POST /api/ai/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	var (
		schema []llm.SchemaTable
		fields []metabase.Field
	)
	if req.TableID > 0 {
		table, err := h.catalog.TableQueryMetadata(r.Context(), req.TableID)
		if err != nil {
			respondError(w, err)
			return
		}
		fields = table.Fields
		schema = []llm.SchemaTable{h.describeTable(r.Context(), req.DatabaseID, table)}
	} else {
		tables, err := h.lists.SchemaForDatabase(r.Context(), req.DatabaseID)
		if err != nil {
			respondError(w, err)
			return
		}
		for i := range tables {
			schema = append(schema, schemaTable(&tables[i], nil))
		}
	}

	res, err := h.suggester.SuggestSegments(r.Context(), llm.AnalyzeRequest{Description: req.Description, Schema: schema})
	if err != nil {
		respondError(w, err)
		return
	}

	out := analyzeResponse{SuggestionResult: res}
	if fields != nil {
		out.Filters = llm.SegmentsToFilters(res.Suggestions, fields, 0)
	}
	httputil.OK(w, out)
}

// AIPreview turns suggestions into filters and previews the matching rows.
//
//	POST /api/ai/preview
func (h *Handlers) AIPreview(w http.ResponseWriter, r *http.Request) {
	var req AIPreviewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	target, suggestions, err := h.resolveSuggestions(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	preview, err := h.lists.Preview(r.Context(), target, req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"suggestions": suggestions,
		"filters":     target.Filters,
		"preview":     preview,
	})
}

// AIExport downloads the rows matched by suggestions. Any campaign option
// routes the export through suppression.
//
//	POST /api/ai/export
func (h *Handlers) AIExport(w http.ResponseWriter, r *http.Request) {
	var req AIExportRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	target, _, err := h.resolveSuggestions(r.Context(), req.AIPreviewRequest)
	if err != nil {
		respondError(w, err)
		return
	}

	opts := req.CampaignOptions
	if opts.CampaignCode != "" || opts.HistoryTableID > 0 || opts.LogHistory {
		h.campaignExport(w, r, target, opts)
		return
	}

	res, err := h.lists.Export(r.Context(), target)
	if err != nil {
		respondError(w, err)
		return
	}
	writeCSV(w, exportFilename("ai-list"), res)
}

// resolveSuggestions reuses the caller's suggestions or asks the model,
// then maps them onto the table's fields. It fails with
// llm.ErrNoMatchingSegments when no suggestion maps onto a field.
func (h *Handlers) resolveSuggestions(ctx context.Context, req AIPreviewRequest) (mailinglist.Target, []llm.Suggestion, error) {
	table, err := h.catalog.TableQueryMetadata(ctx, req.TableID)
	if err != nil {
		return mailinglist.Target{}, nil, err
	}

	suggestions := req.Suggestions
	if len(suggestions) == 0 {
		res, err := h.suggester.SuggestSegments(ctx, llm.AnalyzeRequest{
			Description: req.Description,
			Schema:      []llm.SchemaTable{h.describeTable(ctx, req.DatabaseID, table)},
		})
		if err != nil {
			return mailinglist.Target{}, nil, err
		}
		suggestions = res.Suggestions
	}

	// An empty filter set would select the whole table.
	filters := llm.SegmentsToFilters(suggestions, table.Fields, req.MinConfidence)
	if len(filters) == 0 {
		return mailinglist.Target{}, suggestions, llm.ErrNoMatchingSegments
	}
	return mailinglist.Target{
		DatabaseID: req.DatabaseID,
		TableID:    req.TableID,
		Filters:    filters,
	}, suggestions, nil
}

// describeTable builds the prompt schema for one table, with sample values
// for its text columns.
func (h *Handlers) describeTable(ctx context.Context, databaseID int, table *metabase.Table) llm.SchemaTable {
	var ids []int
	for _, f := range table.Fields {
		if len(ids) == maxSampledFields {
			break
		}
		if strings.TrimPrefix(f.BaseType, "type/") == "Text" {
			ids = append(ids, f.ID)
		}
	}
	return schemaTable(table, h.lists.SampleValues(ctx, databaseID, table.ID, ids))
}

func schemaTable(t *metabase.Table, samples map[int][]mailinglist.ValueCount) llm.SchemaTable {
	st := llm.SchemaTable{Name: t.Name, Fields: make([]llm.SchemaField, 0, len(t.Fields))}
	for _, f := range t.Fields {
		sf := llm.SchemaField{Name: f.Name, DisplayName: f.DisplayName, BaseType: f.BaseType}
		for _, vc := range samples[f.ID] {
			if vc.Value == nil {
				continue
			}
			sf.Samples = append(sf.Samples, fmt.Sprint(vc.Value))
		}
		st.Fields = append(st.Fields, sf)
	}
	return st
}
