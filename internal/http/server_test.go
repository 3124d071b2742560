package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fengshui/internal/core"
	"fengshui/internal/log"
	"fengshui/internal/services"
	"fengshui/internal/snapshot"
	"fengshui/internal/storage/memory"
)

const testDefaults = `{
  "direction": [{"id": "1", "name": "North", "element": "Water"}],
  "element": [{"id": "water", "name": "Water", "degrees": 0}]
}`

func newTestServer(t *testing.T) (*Server, *services.CategoryStore, *memory.Store) {
	t.Helper()
	persist := memory.New()
	store, err := services.NewCategoryStore(persist, []byte(testDefaults))
	require.NoError(t, err)
	store.Initialize(context.Background())

	srv := NewServer(":0", store, log.New(log.Config{Output: io.Discard}))
	require.NotNil(t, srv.templates, "templates must parse")
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store, persist
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(srv, req)
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))
}

func TestStaticAssets(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := do(srv, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")
}

func TestLookup(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Tra cứu")
	assert.Contains(t, rr.Body.String(), "North")

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/?q=water&category=element", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<code>water</code>")
	assert.NotContains(t, body, "<code>1</code>")

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/?q=metal", nil))
	assert.Contains(t, rr.Body.String(), "Không tìm thấy kết quả.")

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLookupCacheFollowsVersion(t *testing.T) {
	srv, store, _ := newTestServer(t)

	do(srv, httptest.NewRequest(http.MethodGet, "/?q=south", nil))
	do(srv, httptest.NewRequest(http.MethodGet, "/?q=south", nil))
	assert.Equal(t, uint64(1), srv.lookupCache.Stats().Hits)

	_, err := store.Add(context.Background(), core.Direction, core.NewRecord("2", map[string]any{"name": "South"}))
	require.NoError(t, err)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/?q=south", nil))
	assert.Contains(t, rr.Body.String(), "South")
}

func TestLookupEscapesValues(t *testing.T) {
	srv, store, _ := newTestServer(t)
	_, err := store.Add(context.Background(), core.Color, core.NewRecord("x", map[string]any{"name": "<script>alert(1)</script>"}))
	require.NoError(t, err)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/?category=color", nil))
	assert.NotContains(t, rr.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rr.Body.String(), "&lt;script&gt;")
}

func TestCreateRecord(t *testing.T) {
	srv, store, persist := newTestServer(t)

	rr := postForm(srv, "/records", url.Values{
		"category":    {"zodiac"},
		"id":          {""},
		"field_name":  {"name", "", "element"},
		"field_value": {"Tý", "ignored", "Thủy"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/entry?notice=added", rr.Header().Get("Location"))

	got := store.Snapshot().Records(core.Zodiac)
	require.Len(t, got, 1)
	assert.Len(t, got[0].ID, 36)
	assert.Equal(t, "Tý", got[0].FieldString("name"))
	assert.Equal(t, "Thủy", got[0].FieldString("element"))
	assert.Equal(t, []string{"element", "name"}, got[0].Keys())
	assert.Equal(t, 1, persist.Saves())

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/entry?notice=added", nil))
	assert.Contains(t, rr.Body.String(), "Đã thêm bản ghi.")
}

func TestCreateRecordValidation(t *testing.T) {
	srv, store, persist := newTestServer(t)

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"unknown category", url.Values{"category": {"weather"}, "field_name": {"a"}, "field_value": {"b"}}, "Danh mục không hợp lệ"},
		{"no fields", url.Values{"category": {"color"}, "field_name": {""}, "field_value": {""}}, "Cần ít nhất một trường"},
		{"mismatched pairs", url.Values{"category": {"color"}, "field_name": {"a", "b"}, "field_value": {"1"}}, "Tên trường và giá trị không khớp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(srv, "/records", tt.form)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.message)
		})
	}
	assert.Equal(t, 2, store.Snapshot().Count())
	assert.Equal(t, 0, persist.Saves())
}

func TestEditRecord(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rr := postForm(srv, "/records/direction/1", url.Values{
		"field_name":  {"name", "element"},
		"field_value": {"North-East", "Water"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/manage?notice=updated", rr.Header().Get("Location"))

	r, ok := store.Snapshot().Find(core.Direction, "1")
	require.True(t, ok)
	assert.Equal(t, "North-East", r.FieldString("name"))
	assert.Equal(t, "Water", r.FieldString("element"))

	rr = postForm(srv, "/records/direction/1", url.Values{
		"field_name":  {"name", "element"},
		"field_value": {"North-East", "Water"},
		"clear":       {"element"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	r, _ = store.Snapshot().Find(core.Direction, "1")
	_, has := r.Field("element")
	assert.False(t, has)
}

func TestEditKeepsUntouchedNumberTypes(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rr := postForm(srv, "/records/element/water", url.Values{
		"field_name":  {"name", "degrees"},
		"field_value": {"Thủy", "0"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	r, _ := store.Snapshot().Find(core.Element, "water")
	assert.Equal(t, json.Number("0"), r.Fields["degrees"])
	assert.Equal(t, "Thủy", r.FieldString("name"))
}

func TestEditUnchangedDoesNotWrite(t *testing.T) {
	srv, _, persist := newTestServer(t)
	rr := postForm(srv, "/records/direction/1", url.Values{
		"field_name":  {"name"},
		"field_value": {"North"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/manage?notice=unchanged", rr.Header().Get("Location"))
	assert.Equal(t, 0, persist.Saves())
}

func TestEditAndDeleteMissingTargets(t *testing.T) {
	srv, store, persist := newTestServer(t)
	before := store.Snapshot()

	for _, path := range []string{
		"/records/direction/missing",
		"/records/weather/1",
		"/records/direction/missing/delete",
		"/records/weather/1/delete",
	} {
		rr := postForm(srv, path, url.Values{"field_name": {"name"}, "field_value": {"x"}})
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "Không tìm thấy bản ghi.", path)
	}
	assert.True(t, before.Equal(store.Snapshot()))
	assert.Equal(t, 0, persist.Saves())
}

func TestDeleteRecord(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rr := postForm(srv, "/records/direction/1/delete", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, 0, store.Snapshot().Len(core.Direction))
	assert.Equal(t, 1, store.Snapshot().Len(core.Element))

	rr = postForm(srv, "/records/direction/1/delete", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestManageListsEveryCategory(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := do(srv, httptest.NewRequest(http.MethodGet, "/manage", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	for _, c := range core.Categories() {
		assert.Contains(t, rr.Body.String(), `id="`+string(c)+`"`)
	}
	assert.Contains(t, rr.Body.String(), `action="/records/direction/1/delete"`)
}

func TestExport(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/export", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="feng_shui_data.json"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	back, err := snapshot.Decode(rr.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, store.Snapshot().Equal(back))

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "0", rr.Header().Get("X-Store-Version"))
}

func importRequest(t *testing.T, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "feng_shui_data.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImport(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rr := do(srv, importRequest(t, `{"trigram":[{"id":"qian","name":"Càn"}]}`))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/manage?notice=imported", rr.Header().Get("Location"))
	assert.Equal(t, 1, store.Snapshot().Count())
	assert.Equal(t, 1, store.Snapshot().Len(core.Trigram))

	rr = do(srv, httptest.NewRequest(http.MethodGet, "/manage?notice=imported", nil))
	assert.Contains(t, rr.Body.String(), "Dữ liệu đã được nhập thành công!")
}

func TestImportFailureLeavesStoreUnchanged(t *testing.T) {
	srv, store, persist := newTestServer(t)
	before := store.Snapshot()

	for name, req := range map[string]*http.Request{
		"malformed": importRequest(t, "not valid json"),
		"no id":     importRequest(t, `{"color":[{"name":"red"}]}`),
		"no file":   httptest.NewRequest(http.MethodPost, "/import", nil),
	} {
		rr := do(srv, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, name)
		assert.Contains(t, rr.Body.String(), "Có lỗi xảy ra khi nhập dữ liệu", name)
	}
	assert.True(t, before.Equal(store.Snapshot()))
	assert.Equal(t, 0, persist.Saves())
}

func TestReset(t *testing.T) {
	srv, store, _ := newTestServer(t)
	defaults := store.Snapshot()

	_, err := store.Add(context.Background(), core.Number, core.NewRecord("8", nil))
	require.NoError(t, err)

	rr := postForm(srv, "/reset", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/manage?notice=reset", rr.Header().Get("Location"))
	assert.True(t, defaults.Equal(store.Snapshot()))

	rr = do(srv, httptest.NewRequest(http.MethodGet, rr.Header().Get("Location"), nil))
	assert.Contains(t, rr.Body.String(), "Dữ liệu đã được đặt lại về mặc định!")
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := do(srv, httptest.NewRequest(http.MethodGet, "/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPostRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var last int
	for i := 0; i < 61; i++ {
		last = postForm(srv, "/reset", nil).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	do(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	rr := do(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total 2")
	assert.Contains(t, body, "store_records 2")
	assert.Contains(t, body, "# TYPE lookup_cache_entries gauge")
}
