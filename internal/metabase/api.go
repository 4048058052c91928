package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MetadataCache stores table metadata between requests. Get reports whether
// dst was filled.
type MetadataCache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any)
}

// Databases lists the databases the session can see. Newer BI tool versions
// wrap the list in {"data": [...]}; older ones return a bare array.
func (c *Client) Databases(ctx context.Context) ([]Database, error) {
	var raw json.RawMessage
	if err := c.Request(ctx, http.MethodGet, "/database", nil, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		Data []Database `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var list []Database
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("metabase: decode database list: %w", err)
	}
	return list, nil
}

// DatabaseMetadata returns a database with all of its tables and fields.
func (c *Client) DatabaseMetadata(ctx context.Context, databaseID int) (*Database, error) {
	key := fmt.Sprintf("database:%d:metadata", databaseID)
	var db Database
	if c.cache != nil && c.cache.Get(ctx, key, &db) {
		return &db, nil
	}
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/database/%d/metadata", databaseID), nil, &db); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, &db)
	}
	return &db, nil
}

// TableQueryMetadata returns a table with its field descriptors.
func (c *Client) TableQueryMetadata(ctx context.Context, tableID int) (*Table, error) {
	key := fmt.Sprintf("table:%d:query_metadata", tableID)
	var t Table
	if c.cache != nil && c.cache.Get(ctx, key, &t) {
		return &t, nil
	}
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/table/%d/query_metadata", tableID), nil, &t); err != nil {
		return nil, err
	}
	for i := range t.Fields {
		if t.Fields[i].TableID == 0 {
			t.Fields[i].TableID = t.ID
		}
	}
	if c.cache != nil {
		c.cache.Set(ctx, key, &t)
	}
	return &t, nil
}

// Table returns table-level metadata (owning database, physical name).
func (c *Client) Table(ctx context.Context, tableID int) (*Table, error) {
	var t Table
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/table/%d", tableID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Dataset runs a structured or native query. The BI tool answers failed
// queries with a 2xx and status "failed"; those become *QueryError.
func (c *Client) Dataset(ctx context.Context, req DatasetRequest) (*DatasetResult, error) {
	var res DatasetResult
	if err := c.Request(ctx, http.MethodPost, "/dataset", req, &res); err != nil {
		return nil, err
	}
	if res.Status == "failed" || res.Error != nil {
		msg := "unknown error"
		if res.Error != nil {
			msg = fmt.Sprint(res.Error)
		}
		return nil, &QueryError{Message: msg}
	}
	return &res, nil
}

// Ping verifies that a session can be obtained.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	_, err := c.session.Get(ctx)
	return err
}
