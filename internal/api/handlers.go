package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/list-builder/internal/cache"
	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/llm"
	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/metrics"
	"github.com/ignite/list-builder/internal/pkg/httputil"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

// Catalog is the part of the BI tool client the browsing endpoints use.
type Catalog interface {
	Databases(ctx context.Context) ([]metabase.Database, error)
	DatabaseMetadata(ctx context.Context, databaseID int) (*metabase.Database, error)
	TableQueryMetadata(ctx context.Context, tableID int) (*metabase.Table, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from. Cache,
// Suggester and Metrics may be nil.
type Deps struct {
	Catalog   Catalog
	Lists     *mailinglist.Service
	Suggester *llm.Suggester
	Cache     *cache.MetadataCache
	Metrics   *metrics.Metrics
}

// Handlers contains all HTTP handlers
type Handlers struct {
	catalog   Catalog
	lists     *mailinglist.Service
	suggester *llm.Suggester
	supp      config.SuppressionConfig
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, supp config.SuppressionConfig) *Handlers {
	return &Handlers{
		catalog:   deps.Catalog,
		lists:     deps.Lists,
		suggester: deps.Suggester,
		supp:      supp,
	}
}

// tableSummary is a table without its fields, for pickers.
type tableSummary struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Schema      string `json:"schema,omitempty"`
}

// ListDatabases returns the databases the BI tool session can see.
//
//	GET /api/databases
func (h *Handlers) ListDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.catalog.Databases(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"databases": dbs})
}

// ListTables returns the tables of one database.
//
//	GET /api/databases/{dbID}/tables
func (h *Handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	dbID, ok := pathID(w, r, "dbID")
	if !ok {
		return
	}
	db, err := h.catalog.DatabaseMetadata(r.Context(), dbID)
	if err != nil {
		respondError(w, err)
		return
	}

	tables := make([]tableSummary, 0, len(db.Tables))
	for _, t := range db.Tables {
		tables = append(tables, tableSummary{ID: t.ID, Name: t.Name, DisplayName: t.DisplayName, Schema: t.Schema})
	}
	httputil.OK(w, map[string]any{"tables": tables})
}

// ListFields returns the field descriptors of one table.
//
//	GET /api/tables/{tableID}/fields
func (h *Handlers) ListFields(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "tableID")
	if !ok {
		return
	}
	t, err := h.catalog.TableQueryMetadata(r.Context(), tableID)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"fields": t.Fields})
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid "+param)
		return 0, false
	}
	return id, true
}

// respondError picks a status for a service error. Missing configuration
// is 503, a busy campaign is 409, suggestions that match no field are 422,
// a BI tool 404 stays 404 and everything else is a 500 carrying the error
// text.
func respondError(w http.ResponseWriter, err error) {
	var apiErr *metabase.APIError
	switch {
	case errors.Is(err, metabase.ErrNotConfigured), errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("request needs an unconfigured upstream", "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, mailinglist.ErrCampaignBusy):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, llm.ErrNoMatchingSegments):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
