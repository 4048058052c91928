package api

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/httputil"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// Count returns the number of rows matching the filters.
//
//	POST /api/count
func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	n, err := h.lists.Count(r.Context(), req.target())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"count": n})
}

// Preview returns the first rows matching the filters with the total count.
//
//	POST /api/preview
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.lists.Preview(r.Context(), req.target(), req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// Export downloads the mailing list as CSV.
//
//	POST /api/export
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.lists.Export(r.Context(), req.target())
	if err != nil {
		respondError(w, err)
		return
	}

	exportID := uuid.NewString()
	metrics.ExportCompleted("list", len(res.Entries), 0)
	logger.Info("List exported", "export_id", exportID, "table_id", req.TableID, "rows", len(res.Entries))

	w.Header().Set("X-Export-ID", exportID)
	w.Header().Set("X-Total-Count", strconv.Itoa(res.Count))
	writeCSV(w, exportFilename("mailing-list"), res)
}

// CampaignExport downloads a suppressed campaign list. format=json returns
// the summary and rows instead of a file.
//
//	POST /api/campaign/export
func (h *Handlers) CampaignExport(w http.ResponseWriter, r *http.Request) {
	var req CampaignExportRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	h.campaignExport(w, r, req.target(), req.CampaignOptions)
}

func (h *Handlers) campaignExport(w http.ResponseWriter, r *http.Request, t mailinglist.Target, opts CampaignOptions) {
	res, err := h.lists.CampaignExport(r.Context(), h.campaignTarget(t, opts))
	if err != nil {
		respondError(w, err)
		return
	}

	exportID := uuid.NewString()
	logger.Info("Campaign list exported",
		"export_id", exportID,
		"campaign_code", opts.CampaignCode,
		"exported", len(res.Entries),
		"suppressed", res.Suppressed)

	w.Header().Set("X-Export-ID", exportID)
	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	w.Header().Set("X-Suppressed-Count", strconv.Itoa(res.Suppressed))

	if opts.Format == "json" {
		httputil.OK(w, struct {
			ExportID string `json:"exportId"`
			*mailinglist.CampaignResult
		}{exportID, res})
		return
	}

	prefix := "campaign"
	if code := safeName.ReplaceAllString(opts.CampaignCode, ""); code != "" {
		prefix += "-" + code
	}
	writeCSV(w, exportFilename(prefix), res.Result)
}

func (h *Handlers) campaignTarget(t mailinglist.Target, opts CampaignOptions) mailinglist.CampaignTarget {
	lookback := h.supp.LookbackDays
	if opts.LookbackDays != nil {
		lookback = *opts.LookbackDays
	}
	return mailinglist.CampaignTarget{
		Target:         t,
		HistoryTableID: opts.HistoryTableID,
		CampaignCode:   opts.CampaignCode,
		LookbackDays:   lookback,
		LogHistory:     opts.LogHistory,
	}
}

// FieldValues returns the most common values of one field.
//
//	POST /api/fields/values
func (h *Handlers) FieldValues(w http.ResponseWriter, r *http.Request) {
	var req FieldValuesRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	values, err := h.lists.FieldValues(r.Context(), req.DatabaseID, req.TableID, req.FieldID, req.Limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"fieldId": req.FieldID, "values": values})
}

// FieldSamples returns distributions for several fields; fields whose
// lookup failed are absent.
//
//	POST /api/fields/samples
func (h *Handlers) FieldSamples(w http.ResponseWriter, r *http.Request) {
	var req FieldSamplesRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	samples := h.lists.SampleValues(r.Context(), req.DatabaseID, req.TableID, req.FieldIDs)
	httputil.OK(w, map[string]any{"samples": samples})
}

var safeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func exportFilename(prefix string) string {
	return fmt.Sprintf("%s-%s.csv", prefix, time.Now().Format("20060102-150405"))
}

// writeCSV streams res as a UTF-8 CSV attachment with a byte order mark.
// Headers are already sent when a write fails, so the error is only logged.
func writeCSV(w http.ResponseWriter, filename string, res *mailinglist.Result) {
	httputil.CSVAttachment(w, filename)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, mailinglist.UTF8BOM); err != nil {
		logger.Warn("CSV write aborted", "file", filename, "error", err)
		return
	}
	if err := mailinglist.WriteResult(w, res); err != nil {
		logger.Warn("CSV write aborted", "file", filename, "error", err)
	}
}
