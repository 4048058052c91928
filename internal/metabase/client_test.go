package metabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/list-builder/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBI is a minimal BI tool: /api/session issues sequential tokens and
// every other path is answered by handle.
type fakeBI struct {
	logins   atomic.Int32
	requests atomic.Int32
	handle   func(w http.ResponseWriter, r *http.Request, attempt int32)
}

func (f *fakeBI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/session" {
		n := f.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("token-%d", n)})
		return
	}
	f.handle(w, r, f.requests.Add(1))
}

func newTestClient(t *testing.T, bi *fakeBI) *Client {
	t.Helper()
	srv := httptest.NewServer(bi)
	t.Cleanup(srv.Close)
	return NewClient(config.MetabaseConfig{
		BaseURL:         srv.URL,
		Username:        "ops@example.com",
		Password:        "secret",
		SessionTTLHours: 312,
	}, srv.Client())
}

func TestRequestSendsSessionHeader(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		assert.Equal(t, "token-1", r.Header.Get("X-Metabase-Session"))
		w.Write([]byte(`{"ok":true}`))
	}}
	c := newTestClient(t, bi)

	var out map[string]bool
	require.NoError(t, c.Request(context.Background(), http.MethodGet, "/user/current", nil, &out))
	require.NoError(t, c.Request(context.Background(), http.MethodGet, "/user/current", nil, &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(1), bi.logins.Load(), "token is cached across calls")
}

func TestSingle401RetriesOnce(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, attempt int32) {
		if attempt == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthenticated"))
			return
		}
		assert.Equal(t, "token-2", r.Header.Get("X-Metabase-Session"))
		w.Write([]byte(`{}`))
	}}
	c := newTestClient(t, bi)

	err := c.Request(context.Background(), http.MethodGet, "/database", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), bi.logins.Load(), "one initial login plus one re-authentication")
	assert.Equal(t, int32(2), bi.requests.Load(), "original request plus exactly one retry")
}

func TestTwo401sAreFatal(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthenticated"))
	}}
	c := newTestClient(t, bi)

	err := c.Request(context.Background(), http.MethodGet, "/database", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(2), bi.requests.Load())
	assert.Equal(t, int32(2), bi.logins.Load())
}

func TestNon2xxCarriesBody(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Table 99 not found"))
	}}
	c := newTestClient(t, bi)

	_, err := c.Table(context.Background(), 99)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Table 99 not found", apiErr.Body)
	assert.Equal(t, int32(1), bi.requests.Load(), "non-401 failures are not retried")
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(config.MetabaseConfig{BaseURL: "http://bi.local"}, nil)
	err := c.Request(context.Background(), http.MethodGet, "/database", nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConfigured)
}

func TestLoginFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":{"password":"did not match stored password"}}`))
	}))
	defer srv.Close()

	c := NewClient(config.MetabaseConfig{BaseURL: srv.URL + "/api/", Username: "u", Password: "p"}, srv.Client())
	err := c.Request(context.Background(), http.MethodGet, "/database", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "did not match")
}

func TestDatabasesAcceptsBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"wrapped": `{"data":[{"id":1,"name":"Marketing"}],"total":1}`,
		"bare":    `[{"id":1,"name":"Marketing"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
				assert.Equal(t, "/api/database", r.URL.Path)
				w.Write([]byte(body))
			}}
			dbs, err := newTestClient(t, bi).Databases(context.Background())
			require.NoError(t, err)
			require.Len(t, dbs, 1)
			assert.Equal(t, "Marketing", dbs[0].Name)
		})
	}
}

func TestDatasetFailedStatus(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"failed","error":"Column \"foo\" not found"}`))
	}}
	_, err := newTestClient(t, bi).Dataset(context.Background(), NativeSQL(1, "SELECT foo"))
	var qErr *QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Contains(t, qErr.Message, "foo")
}

func TestDatasetDecodesRows(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		var req DatasetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "native", req.Type)
		assert.Equal(t, "SELECT 1 AS n", req.Native.Query)
		w.Write([]byte(`{"status":"completed","row_count":1,"data":{"rows":[[1]],"cols":[{"name":"n"}]}}`))
	}}
	res, err := newTestClient(t, bi).Dataset(context.Background(), NativeSQL(1, "SELECT 1 AS n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, res.ColumnNames())
	assert.Equal(t, float64(1), res.Data.Rows[0][0])
}

func TestTableQueryMetadataFillsTableID(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.Write([]byte(`{"id":7,"db_id":2,"name":"contacts","fields":[{"id":70,"name":"email","base_type":"type/Text"}]}`))
	}}
	tbl, err := newTestClient(t, bi).TableQueryMetadata(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.DBID)
	assert.Equal(t, 7, tbl.Fields[0].TableID)
}

type mapCache map[string][]byte

func (m mapCache) Get(_ context.Context, key string, dst any) bool {
	b, ok := m[key]
	if !ok {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

func (m mapCache) Set(_ context.Context, key string, v any) {
	b, _ := json.Marshal(v)
	m[key] = b
}

func TestMetadataCache(t *testing.T) {
	bi := &fakeBI{handle: func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.Write([]byte(`{"id":7,"db_id":2,"name":"contacts"}`))
	}}
	c := newTestClient(t, bi).WithCache(mapCache{})

	for i := 0; i < 3; i++ {
		tbl, err := c.TableQueryMetadata(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "contacts", tbl.Name)
	}
	assert.Equal(t, int32(1), bi.requests.Load())
}

func TestSessionManagerExpiry(t *testing.T) {
	var logins int
	sm := NewSessionManager(time.Hour, func(context.Context) (string, error) {
		logins++
		return fmt.Sprintf("t%d", logins), nil
	})
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	tok, err := sm.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tok)

	now = now.Add(30 * time.Minute)
	tok, _ = sm.Get(context.Background())
	assert.Equal(t, "t1", tok)

	now = now.Add(31 * time.Minute)
	tok, _ = sm.Get(context.Background())
	assert.Equal(t, "t2", tok)

	sm.Invalidate()
	tok, _ = sm.Get(context.Background())
	assert.Equal(t, "t3", tok)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "table/query_metadata", endpointLabel("/table/12/query_metadata"))
	assert.Equal(t, "dataset", endpointLabel("/dataset"))
}
