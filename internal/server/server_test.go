package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/gentleman/internal/config"
	"github.com/phobologic/gentleman/internal/llm"
	"github.com/phobologic/gentleman/internal/metrics"
	"github.com/phobologic/gentleman/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	goodDesc = "Returns a constant integer value used by the rest of the module."
	source   = "def one():\n    return 1\n"
)

type testEnv struct {
	router    *gin.Engine
	uploadDir string
	builds *atomic.Int32
	models chan string
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{uploadDir: t.TempDir(), builds: &atomic.Int32{}, models: make(chan string, 8)}
	factory := func(ctx context.Context, o llm.Options) (llm.Completer, error) {
		env.builds.Add(1)
		env.models <- o.Model
		return llm.Answers("['constant']", goodDesc, "Getters/Setters/Properties"), nil
	}

	reg := prometheus.NewRegistry()
	b, err := pipeline.NewBuilder(config.Default(),
		pipeline.WithClientFactory(factory),
		pipeline.WithBuilderMetrics(metrics.New(reg)),
	)
	require.NoError(t, err)

	o := Options{UploadDir: env.uploadDir, CacheSize: 8, Gatherer: reg}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := New(b, o)
	require.NoError(t, err)
	env.router = s.Router()
	return env
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, name, content string) string {
	t.Helper()
	w := e.post(t, "/upload", UploadRequest{Filename: name, Content: content})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var folder string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &folder))
	require.NotEmpty(t, folder)
	return folder
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestUploadAndAnalyze(t *testing.T) {
	env := newTestEnv(t)
	folder := env.upload(t, "master.py", source)

	model := "custom/model"
	w := env.post(t, "/analyze", AnalyzeRequest{Filepath: folder + "/master.py", Model: &model})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))
	assert.Equal(t, "custom/model", <-env.models)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "master.py", out[0]["file"])
	assert.Equal(t, "one", out[1]["name"])
	assert.Equal(t, []any{"1", "int"}, out[1]["return"])
	assert.Equal(t, "Getters/Setters/Properties", out[1]["category"])

	again := env.post(t, "/analyze", AnalyzeRequest{Filepath: folder + "/master.py", Model: &model})
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "hit", again.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), env.builds.Load())
}

func TestAnalyzeDefaultModel(t *testing.T) {
	env := newTestEnv(t)
	folder := env.upload(t, "m.py", source)

	w := env.post(t, "/analyze", AnalyzeRequest{Filepath: folder + "/m.py"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, config.DefaultModel, <-env.models)
}

func TestUploadRejectsPaths(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"../escape.py", "dir/file.py", "/abs.py", ""} {
		w := env.post(t, "/upload", UploadRequest{Filename: name, Content: "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	env := newTestEnv(t)
	folder := env.upload(t, "broken.py", "def broken(:\n    pass\n")

	tests := []struct {
		name     string
		filepath string
		status   int
		code     string
	}{
		{"traversal", "../secret.py", http.StatusBadRequest, "INVALID_PATH"},
		{"missing", folder + "/nope.py", http.StatusNotFound, "NOT_FOUND"},
		{"parse error", folder + "/broken.py", http.StatusUnprocessableEntity, "PARSE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(t, "/analyze", AnalyzeRequest{Filepath: tt.filepath})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAnalyzeBadJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	folder := env.upload(t, "m.py", source)
	require.Equal(t, http.StatusOK, env.post(t, "/analyze", AnalyzeRequest{Filepath: folder + "/m.py"}).Code)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gentleman_pipeline_files_total")
}

func TestNewRequiresUploadDir(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func withMaxFileSize(n int64) func(*Options) {
	return func(o *Options) { o.MaxFileSize = n }
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, withMaxFileSize(32))

	w := env.post(t, "/upload", UploadRequest{Filename: "big.py", Content: strings.Repeat("x = 1\n", 10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FILE_TOO_LARGE", resp.Code)

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "oversized upload must not be written")

	env.upload(t, "small.py", source)
}

func TestUploadBodyLimit(t *testing.T) {
	env := newTestEnv(t, withMaxFileSize(32))

	// Padding outside the content field still counts against the body limit.
	body := `{"filename":"a.py","content":"x","pad":"` + strings.Repeat("y", 2*32+maxEnvelope) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestAnalyzeTooLarge(t *testing.T) {
	env := newTestEnv(t, withMaxFileSize(32))

	// Files placed in the upload dir by other means are bounded too.
	dir := filepath.Join(env.uploadDir, "manual")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.py"), []byte(strings.Repeat("x = 1\n", 10)), 0o644))

	w := env.post(t, "/analyze", AnalyzeRequest{Filepath: "manual/big.py"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FILE_TOO_LARGE", resp.Code)
	assert.Zero(t, env.builds.Load(), "no model should be built for a rejected file")
}

func TestNewDefaultsMaxFileSize(t *testing.T) {
	s, err := New(nil, Options{UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, int64(pipeline.DefaultMaxFileSize), s.maxFileSize)
}
