// # internal/server/handlers_test.go
package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewd/internal/analyzer"
	"reviewd/internal/config"
	"reviewd/internal/history"
	"reviewd/internal/server"
)

// quietConfig returns defaults with rate limiting switched off, so tests
// can hammer the analyze routes freely.
func quietConfig() *config.Config {
	cfg := config.Default()
	off := false
	cfg.Server.RateLimit.Enabled = &off
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, store *history.Store, rec *history.Recorder) (*server.Server, *httptest.Server) {
	t.Helper()
	srv, err := server.New(cfg, store, rec)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeReport(t *testing.T, resp *http.Response) analyzer.Report {
	t.Helper()
	defer resp.Body.Close()
	var report analyzer.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	return report
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload["error"]
}

func TestHomeRoute(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Code Review Tool Backend Running", payload["message"])
}

func TestUnknownPathIs404(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyzeRoute(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp := postJSON(t, ts.URL+"/analyze", `{"code":"import os\n"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeReport(t, resp)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, analyzer.SeverityWarning, report.Issues[0].Severity)
	require.NotNil(t, report.Issues[0].Line)
	assert.Equal(t, 1, *report.Issues[0].Line)
	assert.Equal(t, "Import 'os' is never used", report.Issues[0].Message)
	assert.Equal(t, 1, report.Summary.Warnings)
	assert.Equal(t, 1, report.Summary.Total)
}

func TestAnalyzeCleanCode(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp := postJSON(t, ts.URL+"/analyze", `{"code":"def f():\n    \"\"\"Doc.\"\"\"\n    return 1\n"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeReport(t, resp)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, analyzer.SeverityInfo, report.Issues[0].Severity)
	assert.Nil(t, report.Issues[0].Line)
	assert.Equal(t, "No obvious issues found", report.Issues[0].Message)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	t.Run("not json", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/analyze", "print('hi')")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "request body must be JSON", decodeError(t, resp))
	})

	t.Run("missing code field", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/analyze", `{"source":"x = 1"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "missing required field: code", decodeError(t, resp))
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/analyze")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestAnalyzeBodyLimit(t *testing.T) {
	cfg := quietConfig()
	cfg.Limits.MaxSourceBytes = 64
	_, ts := newTestServer(t, cfg, nil, nil)

	big := strings.Repeat("a", 200)
	resp := postJSON(t, ts.URL+"/analyze", `{"code":"`+big+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "64 bytes")
}

func multipartBody(t *testing.T, field, name string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadRoute(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	body, contentType := multipartBody(t, "file", "app.py", []byte("print('hi')\n"))
	resp, err := http.Post(ts.URL+"/analyze/upload", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeReport(t, resp)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, analyzer.SeverityWarning, report.Issues[0].Severity)
	assert.Equal(t, "Avoid using print() in production code", report.Issues[0].Message)
}

func TestUploadRejections(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	t.Run("disallowed file name", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "main.go", []byte("package main\n"))
		resp, err := http.Post(ts.URL+"/analyze/upload", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp), "does not match the allowed patterns")
	})

	t.Run("wrong form field", func(t *testing.T) {
		body, contentType := multipartBody(t, "document", "app.py", []byte("x = 1\n"))
		resp, err := http.Post(ts.URL+"/analyze/upload", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp), "'file' field")
	})

	t.Run("binary content", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "app.py", []byte{0xff, 0xfe, 0x00, 0x01})
		resp, err := http.Post(ts.URL+"/analyze/upload", contentType, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp), "UTF-8")
	})
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "reviewd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	rec := history.NewRecorder(store, 16)

	_, ts := newTestServer(t, quietConfig(), store, rec)

	resp := postJSON(t, ts.URL+"/analyze", `{"code":"import os\nx = 1\n"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(ctx))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.SourceAPI, records[0].Source)
	assert.Equal(t, 2, records[0].LineCount)
	assert.Equal(t, 1, records[0].Bugs)     // x is assigned but never used
	assert.Equal(t, 1, records[0].Warnings) // os is imported but never used
	assert.Equal(t, 2, records[0].Total)
}

func TestHistoryRoute(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "reviewd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(history.Record{Source: history.SourceCLI, LineCount: i + 1}))
		time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	}

	_, ts := newTestServer(t, quietConfig(), store, nil)

	t.Run("default limit", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/history")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Items []history.Record `json:"items"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Len(t, payload.Items, 3)
		assert.Equal(t, 3, payload.Items[0].LineCount) // newest first
	})

	t.Run("explicit limit", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/history?limit=1")
		require.NoError(t, err)
		defer resp.Body.Close()

		var payload struct {
			Items []history.Record `json:"items"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Len(t, payload.Items, 1)
	})

	t.Run("bad limit", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/history?limit=many")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "limit must be an integer", decodeError(t, resp))
	})
}

func TestHistoryRouteDisabled(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Items []history.Record `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotNil(t, payload.Items)
	assert.Empty(t, payload.Items)
}

func TestHealthzRoute(t *testing.T) {
	t.Run("history disabled", func(t *testing.T) {
		_, ts := newTestServer(t, quietConfig(), nil, nil)

		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var status struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "up", status.Status)
		assert.Equal(t, "ok", status.Components["analyzer"])
		assert.Equal(t, "disabled", status.Components["history"])
	})

	t.Run("history reachable", func(t *testing.T) {
		store, err := history.Open(filepath.Join(t.TempDir(), "reviewd.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		_, ts := newTestServer(t, quietConfig(), store, nil)

		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var status struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "ok", status.Components["history"])
	})

	t.Run("history unreachable", func(t *testing.T) {
		store, err := history.Open(filepath.Join(t.TempDir(), "reviewd.db"))
		require.NoError(t, err)
		_, ts := newTestServer(t, quietConfig(), store, nil)
		require.NoError(t, store.Close())

		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var status struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "unreachable", status.Components["history"])
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	on := true
	cfg.Server.RateLimit.Enabled = &on
	cfg.Server.RateLimit.RequestsPerMinute = 60
	cfg.Server.RateLimit.Burst = 1
	_, ts := newTestServer(t, cfg, nil, nil)

	first := postJSON(t, ts.URL+"/analyze", `{"code":"x = 1\n"}`)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, ts.URL+"/analyze", `{"code":"x = 1\n"}`)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))

	// Read-only routes stay reachable.
	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestCORSHeaders(t *testing.T) {
	t.Run("default allows all origins", func(t *testing.T) {
		_, ts := newTestServer(t, quietConfig(), nil, nil)

		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/analyze", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:5173")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("configured origin list", func(t *testing.T) {
		cfg := quietConfig()
		cfg.Server.CORSOrigins = []string{"http://app.example"}
		_, ts := newTestServer(t, cfg, nil, nil)

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://app.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "http://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "http://evil.example")
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestOpenAPIRoute(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/analyze")
	assert.Contains(t, paths, "/analyze/upload")
}

func TestMetricsRoute(t *testing.T) {
	_, ts := newTestServer(t, quietConfig(), nil, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "reviewd_rate_limited_total")
}

func TestUpdateConfigSwapsAnalysisOptions(t *testing.T) {
	srv, ts := newTestServer(t, quietConfig(), nil, nil)

	src := `{"code":"def f():\n    \"\"\"Doc.\"\"\"\n    return 1\n"}`

	resp := postJSON(t, ts.URL+"/analyze", src)
	report := decodeReport(t, resp)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "No obvious issues found", report.Issues[0].Message)

	next := quietConfig()
	next.Analysis.FileLengthInfo = 2
	srv.UpdateConfig(next)

	resp = postJSON(t, ts.URL+"/analyze", src)
	report = decodeReport(t, resp)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "File is long (3 lines). Consider breaking code into smaller functions", report.Issues[0].Message)
	assert.Nil(t, report.Issues[0].Line)
}
