package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierguard/internal/audit"
	"tierguard/internal/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *harness) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := newHarness(t)
	router := gin.New()
	NewHandler(h.svc, logger.NopLogger()).RegisterRoutes(router)
	return router, h
}

func do(router http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestListActionsEndpoint(t *testing.T) {
	router, h := newTestRouter(t)
	h.audit.records = []audit.Record{{ID: 1, ActionType: "REMOVE_LIMIT", Identity: "alice"}}

	w := do(router, http.MethodGet, "/api/v1/actions?page=3&search=alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page ActionsPage
	decode(t, w, &page)
	assert.Equal(t, 3, page.Page.Page)
	assert.Equal(t, "alice", page.Search)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "REMOVE_LIMIT", page.Records[0].ActionType)

	w = do(router, http.MethodGet, "/api/v1/actions?page=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, h.audit.lastQuery.Page, "the repository clamps bad pages")
}

func TestRecentActionsEndpoint(t *testing.T) {
	router, h := newTestRouter(t)
	for i := 0; i < 8; i++ {
		h.audit.records = append(h.audit.records, audit.Record{ID: int64(i)})
	}

	w := do(router, http.MethodGet, "/api/v1/actions/recent", "")
	require.Equal(t, http.StatusOK, w.Code)

	var records []audit.Record
	decode(t, w, &records)
	assert.Len(t, records, 5)
}

func TestExportEndpoint(t *testing.T) {
	router, h := newTestRouter(t)
	h.audit.records = []audit.Record{{ID: 1, ActionType: "REMOVE_LIMIT", Identity: "alice", Timestamp: fixedNow}}

	w := do(router, http.MethodGet, "/api/v1/actions/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=mod_log.csv", w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "ID,Action Type,"))
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/stats?start_date=2024-01-01&end_date=2024-01-07", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	decode(t, w, &stats)
	assert.Equal(t, "2024-01-07", stats.EndDate)

	w = do(router, http.MethodGet, "/api/v1/stats?start_date=2024-01-07&end_date=2024-01-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestNotesEndpoints(t *testing.T) {
	router, h := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/notes", `{"username":"alice","note":"watch"}`, "X-Moderator", "mod1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mod1", h.notes.notes["alice"].Moderator)

	w = do(router, http.MethodPost, "/api/v1/notes", `{"note":"no user"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/notes/alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"note":"watch"`)

	w = do(router, http.MethodGet, "/api/v1/notes", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/notes/alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/notes/alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveNoteDefaultsModerator(t *testing.T) {
	router, h := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/notes", `{"username":"bob","note":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dashboard", h.notes.notes["bob"].Moderator)
}

func TestConfigEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPut, "/api/v1/config/tiers", `{"content":"- {max_karma: 100, limit: 1}\n"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPut, "/api/v1/config/tiers", `{"content":"- {max_karma: 200, limit: 2}\n"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var doc Document
	decode(t, w, &doc)
	assert.True(t, doc.HasBackup)

	w = do(router, http.MethodPut, "/api/v1/config/tiers", `{"content":"- {max_karma: 200, limit: -3}\n"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "reason")

	w = do(router, http.MethodPost, "/api/v1/config/tiers/restore", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &doc)
	assert.Contains(t, doc.Content, "max_karma: 100")

	w = do(router, http.MethodGet, "/api/v1/config/passwords", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBanEndpoint(t *testing.T) {
	router, h := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/bans", `{"username":"spammer","duration":3,"reason":"spam"}`, "X-Moderator", "mod1")
	require.Equal(t, http.StatusCreated, w.Code)
	var rec audit.Record
	decode(t, w, &rec)
	assert.Equal(t, "BAN_USER", rec.ActionType)
	assert.False(t, rec.Reversible)

	w = do(router, http.MethodPost, "/api/v1/bans", `{"username":"spammer","duration":1000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.tools.banErr = errPlatform
	w = do(router, http.MethodPost, "/api/v1/bans", `{"username":"spammer"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), errPlatform.Error())
}

func TestItemEndpoints(t *testing.T) {
	router, h := newTestRouter(t)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/api/v1/items/t3_a/approve", "").Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/api/v1/items/t3_a/remove", "").Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/api/v1/items/t3_b/remove", `{"spam":true,"reason":"ads"}`).Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/api/v1/items/t1_c/ignore-reports", "").Code)

	assert.Equal(t, []toolCall{
		{Op: "approve", ID: "t3_a"},
		{Op: "remove", ID: "t3_a"},
		{Op: "remove", ID: "t3_b", Spam: true, Note: "ads"},
		{Op: "ignore_reports", ID: "t1_c"},
	}, h.tools.calls)

	w := do(router, http.MethodPost, "/api/v1/items/bulk", `{"action":"approve","item_ids":["t3_x","t3_y"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp BulkResponse
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Succeeded)

	w = do(router, http.MethodPost, "/api/v1/items/bulk", `{"action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
