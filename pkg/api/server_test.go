package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eventsift/eventsift/pkg/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	rows    []map[string]any
	lastSQL string
	err     error
	pingErr error
}

func (f *fakeQuerier) Select(_ context.Context, sql string) ([]map[string]any, error) {
	f.lastSQL = sql
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeQuerier) Ping(context.Context) error { return f.pingErr }

const validBody = `{
	"project": 1,
	"from_date": "2021-05-01",
	"to_date": "2021-05-02",
	"aggregations": [["count()", "", "total"]],
	"groupby": "environment"
}`

func TestServerQuery(t *testing.T) {
	querier := &fakeQuerier{rows: []map[string]any{
		{"environment": "production", "total": uint64(7)},
	}}
	server := api.NewServer(querier, "events", nil)

	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, httptest.NewRequest(
		http.MethodPost, "/query", strings.NewReader(validBody)))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))

	var body struct {
		Data        []map[string]any `json:"data"`
		SQL         string           `json:"sql"`
		Fingerprint string           `json:"fingerprint"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "production", body.Data[0]["environment"])
	require.Equal(t, querier.lastSQL, body.SQL)
	require.Contains(t, body.SQL, "FROM events")
	require.Contains(t, body.Fingerprint, "$N")
	require.NotContains(t, body.Fingerprint, "2021-05-01")
}

func TestServerQueryErrors(t *testing.T) {
	tests := []struct {
		name    string
		querier *fakeQuerier
		method  string
		body    string
		code    int
	}{
		{
			name:    "malformed body",
			querier: &fakeQuerier{},
			method:  http.MethodPost,
			body:    `{"project": `,
			code:    http.StatusBadRequest,
		},
		{
			name:    "invalid request",
			querier: &fakeQuerier{},
			method:  http.MethodPost,
			body:    `{"from_date": "2021-05-01", "to_date": "2021-05-02"}`,
			code:    http.StatusBadRequest,
		},
		{
			name:    "malformed groupby shorthand",
			querier: &fakeQuerier{},
			method:  http.MethodPost,
			body: `{
				"project": 1,
				"from_date": "2021-05-01",
				"to_date": "2021-05-02",
				"aggregations": [["count()", "", "total"]],
				"groupby": "count((("
			}`,
			code: http.StatusBadRequest,
		},
		{
			name:    "execution failure",
			querier: &fakeQuerier{err: errors.New("connection refused")},
			method:  http.MethodPost,
			body:    validBody,
			code:    http.StatusInternalServerError,
		},
		{
			name:    "wrong method",
			querier: &fakeQuerier{},
			method:  http.MethodGet,
			body:    "",
			code:    http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := api.NewServer(tt.querier, "events", nil)
			resp := httptest.NewRecorder()
			server.ServeHTTP(resp, httptest.NewRequest(
				tt.method, "/query", strings.NewReader(tt.body)))

			require.Equal(t, tt.code, resp.Code)

			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestServerHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := api.NewServer(&fakeQuerier{}, "events", nil)
		resp := httptest.NewRecorder()
		server.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "ok", resp.Body.String())
	})

	t.Run("backend down", func(t *testing.T) {
		server := api.NewServer(&fakeQuerier{pingErr: errors.New("dial tcp: refused")}, "events", nil)
		resp := httptest.NewRecorder()
		server.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}
