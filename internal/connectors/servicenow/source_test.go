package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

type tableResponse struct {
	status  int
	records []map[string]any
	body    string
	header  map[string]string
}

func newTestServer(t *testing.T, tables map[string]tableResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"User Not Authenticated","detail":"Required to provide Auth information"}}`))
			return
		}

		table := strings.TrimPrefix(r.URL.Path, "/api/now/table/")
		resp, ok := tables[table]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"Invalid table"}}`))
			return
		}
		for k, v := range resp.header {
			w.Header().Set(k, v)
		}
		if resp.status != 0 {
			w.WriteHeader(resp.status)
		}
		if resp.body != "" {
			w.Write([]byte(resp.body))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": resp.records})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSource(srv *httptest.Server, password string, tables ...string) *Source {
	cfg := Config{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: password,
		Tables:   tables,
		Limit:    10,
	}
	src := New(cfg, srv.Client())
	src.client.limiter = rate.NewLimiter(rate.Inf, 1)
	src.client.retryDelay = time.Millisecond
	return src
}

func TestSource_Kind(t *testing.T) {
	assert.Equal(t, domain.SourceKindServiceNow, New(Config{}, nil).Kind())
}

func TestSource_Fetch(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{
		"incident": {records: []map[string]any{
			{"sys_id": "abc123", "number": "INC0010001", "short_description": "VPN down", "description": "Users cannot connect"},
			{"sys_id": "", "number": "INC0010002", "short_description": "Printer jam"},
			{"sys_id": "empty", "number": "INC0010003", "short_description": "", "description": ""},
		}},
		"kb_knowledge": {records: []map[string]any{
			{"sys_id": "kb1", "text": "Reset your password", "question": "How?", "answer": "Use the portal"},
		}},
	})
	src := newTestSource(srv, "secret", "incident", "kb_knowledge")

	docs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	inc := docs[0]
	assert.Equal(t, "incident-abc123", inc.ID)
	assert.Equal(t, "VPN down Users cannot connect", inc.Content)
	assert.Equal(t, "servicenow", inc.Source)
	assert.Equal(t, "incident", inc.Metadata[domain.MetaTable])
	assert.Equal(t, "abc123", inc.Metadata[domain.MetaSysID])
	assert.Equal(t, "INC0010001", inc.Metadata[domain.MetaNumber])
	assert.Equal(t, "VPN down", inc.Metadata[domain.MetaShortDescription])
	assert.Equal(t, srv.URL+"/incident.do?sys_id=abc123", inc.Metadata[domain.MetaLink])
	assert.Equal(t, srv.URL+"/nav_to.do?uri=%2Fincident.do%3Fsys_id%3Dabc123", inc.Metadata[domain.MetaNavLink])

	byNumber := docs[1]
	assert.Equal(t, "incident-INC0010002", byNumber.ID)
	assert.NotContains(t, byNumber.Metadata, domain.MetaSysID)
	assert.Equal(t, srv.URL+"/incident_list.do?sysparm_query=number=INC0010002", byNumber.Metadata[domain.MetaLink])
	assert.Equal(t, byNumber.Metadata[domain.MetaLink], byNumber.Metadata[domain.MetaNavLink])

	kb := docs[2]
	assert.Equal(t, "kb_knowledge-kb1", kb.ID)
	assert.Equal(t, "Reset your password How? Use the portal", kb.Content)
}

func TestSource_FetchSendsLimit(t *testing.T) {
	var gotLimit, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("sysparm_limit")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	docs, err := newTestSource(srv, "secret", "incident").Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, "10", gotLimit)
	assert.Equal(t, "application/json", gotAccept)
}

func TestSource_FetchUnauthorized(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{"incident": {}})

	_, err := newTestSource(srv, "wrong", "incident", "kb_knowledge").Fetch(context.Background())

	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "User Not Authenticated")
	assert.Contains(t, domain.NewBuildError(err).Hint, "SERVICENOW_USERNAME")
}

func TestSource_FetchForbiddenHint(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{"incident": {status: http.StatusForbidden, body: `{}`}})

	_, err := newTestSource(srv, "secret", "incident").Fetch(context.Background())

	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, domain.NewBuildError(err).Hint, "rest_api_explorer")
}

func TestSource_FetchLoginPage(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{
		"incident": {body: "<html><body>Log in</body></html>", header: map[string]string{"Content-Type": "text/html"}},
	})

	_, err := newTestSource(srv, "secret", "incident").Fetch(context.Background())

	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.True(t, IsUnauthorized(err))
}

func TestSource_FetchMissingTableSkipped(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{
		"incident": {records: []map[string]any{{"sys_id": "a", "short_description": "ok"}}},
	})

	docs, err := newTestSource(srv, "secret", "incident", "no_such_table").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSource_FetchAllTablesFail(t *testing.T) {
	srv := newTestServer(t, nil)

	_, err := newTestSource(srv, "secret", "a", "b").Fetch(context.Background())

	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, domain.NewBuildError(err).Hint, "Table 'b'")
}

func TestSource_FetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	src := newTestSource(srv, "secret", "incident")
	srv.Close()

	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestSource_FetchRetriesThrottled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"result":[{"sys_id":"a","short_description":"after retry"}]}`))
	}))
	defer srv.Close()

	docs, err := newTestSource(srv, "secret", "incident").Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSource_FetchRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestSource(srv, "secret", "incident").Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(MaxRetries+1), calls.Load())
}

func TestSource_FetchCancelled(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{"incident": {}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSource(srv, "secret", "incident").Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_Check(t *testing.T) {
	srv := newTestServer(t, map[string]tableResponse{
		"incident": {records: []map[string]any{{"sys_id": "a"}}},
	})

	n, err := newTestSource(srv, "secret", "incident").Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = newTestSource(srv, "wrong", "incident").Check(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestRecord_String(t *testing.T) {
	rec := Record{
		"plain":     "  text ",
		"reference": map[string]any{"value": "id1", "display_value": "Network"},
		"value":     map[string]any{"value": "id2"},
		"number":    42.0,
		"null":      nil,
	}

	assert.Equal(t, "text", rec.String("plain"))
	assert.Equal(t, "Network", rec.String("reference"))
	assert.Equal(t, "id2", rec.String("value"))
	assert.Equal(t, "42", rec.String("number"))
	assert.Equal(t, "", rec.String("null"))
	assert.Equal(t, "", rec.String("missing"))
}

func TestRecordLinks_NoIdentifiers(t *testing.T) {
	link, nav := recordLinks("https://dev1.service-now.com", "incident", "", "")

	assert.Equal(t, "https://dev1.service-now.com", link)
	assert.Equal(t, link, nav)
}
