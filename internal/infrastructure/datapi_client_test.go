package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapi-mcp-server/internal/domain"
)

// recordedRequest captures what the mock server saw.
type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Token  string
	Body   []byte
}

// mockDatastore routes requests to canned handlers and records them.
type mockDatastore struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]http.HandlerFunc
}

func newMockDatastore(t *testing.T) *mockDatastore {
	t.Helper()
	m := &mockDatastore{routes: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		query := make(map[string]string)
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}

		m.mu.Lock()
		m.requests = append(m.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  query,
			Token:  r.Header.Get(domain.AuthHeader),
			Body:   body,
		})
		handler, ok := m.routes[r.Method+" "+r.URL.Path]
		m.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"title":"not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockDatastore) handle(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[method+" "+path] = handler
}

func (m *mockDatastore) respond(method, path string, status int, body string) {
	m.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (m *mockDatastore) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// newTestClient returns a client authenticated with the token "test-token".
func newTestClient(t *testing.T, baseURL, downloadDir string) *DatapiClient {
	t.Helper()
	return newTestClientWithTimeout(t, baseURL, downloadDir, 0)
}

// newTestClientWithTimeout scopes the token to the baseURL host and applies
// timeout to API requests.
func newTestClientWithTimeout(t *testing.T, baseURL, downloadDir string, timeout time.Duration) *DatapiClient {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	am := domain.NewAuthenticationManager(&domain.Credentials{Key: "test-token", Host: u.Host}, nil, timeout)
	httpClient, err := am.GetAuthenticatedClient()
	require.NoError(t, err)
	return NewDatapiClient(baseURL, httpClient, downloadDir)
}

func TestNewDatapiClient_TrimsTrailingSlash(t *testing.T) {
	client := NewDatapiClient("https://cds.climate.copernicus.eu/api/", http.DefaultClient, ".")
	assert.Equal(t, "https://cds.climate.copernicus.eu/api", client.BaseURL())
}

func TestCheckAuthentication(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodPost, "/api/profiles/v1/account/verification/pat", http.StatusOK, `{"id":"user"}`)
	client := newTestClient(t, server.URL+"/api", t.TempDir())

	require.NoError(t, client.CheckAuthentication(context.Background()))

	req := server.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "test-token", req.Token)
}

func TestCheckAuthentication_Unauthorized(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodPost, "/profiles/v1/account/verification/pat", http.StatusUnauthorized, `{"title":"invalid token"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	err := client.CheckAuthentication(context.Background())
	require.Error(t, err)

	var httpErr domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "invalid token")
}

func TestGetJobs(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/retrieve/v1/jobs", http.StatusOK,
		`{"jobs":[{"jobID":"c"},{"jobID":"a"},{"jobID":"b"}],"links":[]}`)
	client := newTestClient(t, server.URL, t.TempDir())

	ids, err := client.GetJobs(context.Background(), domain.QueryParams{"sortby": "-created", "status": "failed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	req := server.last()
	assert.Equal(t, map[string]string{"sortby": "-created", "status": "failed"}, req.Query)
	assert.Equal(t, "test-token", req.Token)
}

func TestGetJobs_Empty(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/retrieve/v1/jobs", http.StatusOK, `{"jobs":[]}`)
	client := newTestClient(t, server.URL, t.TempDir())

	ids, err := client.GetJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
	assert.Empty(t, server.last().Query)
}

func TestGetCollections(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/catalogue/v1/datasets", http.StatusOK,
		`{"collections":[{"id":"reanalysis-era5-single-levels"},{"id":"cams-global-reanalysis-eac4"}]}`)
	client := newTestClient(t, server.URL, t.TempDir())

	ids, err := client.GetCollections(context.Background(), domain.QueryParams{"sortby": "update"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reanalysis-era5-single-levels", "cams-global-reanalysis-eac4"}, ids)
	assert.Equal(t, "update", server.last().Query["sortby"])
}

func TestGetCollection(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/catalogue/v1/collections/reanalysis-era5-single-levels", http.StatusOK, `{
		"id": "reanalysis-era5-single-levels",
		"title": "ERA5 hourly data on single levels",
		"description": "Hourly reanalysis",
		"published": "2018-06-14T00:00:00Z",
		"updated": "2024-05-02T10:15:30Z",
		"extent": {
			"spatial": {"bbox": [[10, -5, 20, 5]]},
			"temporal": {"interval": [["1940-01-01T00:00:00Z", "2024-04-26T00:00:00Z"]]}
		}
	}`)
	client := newTestClient(t, server.URL, t.TempDir())

	record, err := client.GetCollection(context.Background(), "reanalysis-era5-single-levels")
	require.NoError(t, err)
	require.NotNil(t, record)

	require.NotNil(t, record.ID)
	assert.Equal(t, "reanalysis-era5-single-levels", *record.ID)
	require.NotNil(t, record.PublishedAt)
	assert.Equal(t, "2018-06-14T00:00:00Z", *record.PublishedAt)
	require.NotNil(t, record.BeginDatetime)
	assert.Equal(t, "1940-01-01T00:00:00Z", *record.BeginDatetime)
	require.NotNil(t, record.EndDatetime)
	assert.Equal(t, "2024-04-26T00:00:00Z", *record.EndDatetime)
	assert.Equal(t, []interface{}{10.0, -5.0, 20.0, 5.0}, record.BBox)

	info, err := domain.NewCollectionInfo(*record)
	require.NoError(t, err)
	assert.Equal(t, [4]float64{10, -5, 20, 5}, info.BBox)
}

func TestGetCollection_MissingExtent(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/catalogue/v1/collections/partial", http.StatusOK,
		`{"id":"partial","title":"t","description":"d","published":"2020-01-01T00:00:00Z","updated":"2020-01-01T00:00:00Z"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	record, err := client.GetCollection(context.Background(), "partial")
	require.NoError(t, err)
	assert.Nil(t, record.BeginDatetime)
	assert.Nil(t, record.BBox)

	_, err = domain.NewCollectionInfo(*record)
	assert.ErrorIs(t, err, domain.ErrInvalidResponseShape)
}

func TestGetCollection_NotFound(t *testing.T) {
	server := newMockDatastore(t)
	client := newTestClient(t, server.URL, t.TempDir())

	_, err := client.GetCollection(context.Background(), "nope")

	var httpErr domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestSubmit(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodPost, "/retrieve/v1/processes/reanalysis-era5-single-levels/execution", http.StatusCreated,
		`{"jobID":"9c1b-job","status":"accepted"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	request := domain.NewDownloadRequest("reanalysis-era5-single-levels")
	request.ProductType = []string{"reanalysis"}
	request.Variable = []string{"2m_temperature"}
	request.Year = []string{"2024"}
	request.Month = []string{"01"}
	request.Day = []string{"01"}

	jobID, err := client.Submit(context.Background(), request.ID, request.SubmissionInputs())
	require.NoError(t, err)
	assert.Equal(t, "9c1b-job", jobID)

	var body struct {
		Inputs map[string]interface{} `json:"inputs"`
	}
	require.NoError(t, json.Unmarshal(server.last().Body, &body))
	assert.NotContains(t, body.Inputs, "id")
	assert.NotContains(t, body.Inputs, "pressure_level")
	assert.Equal(t, "netcdf", body.Inputs["data_format"])
	assert.Equal(t, "zip", body.Inputs["download_format"])
	assert.Equal(t, []interface{}{90.0, -180.0, -90.0, 180.0}, body.Inputs["area"])
	assert.Len(t, body.Inputs["time"], 24)
}

func TestSubmit_MissingJobID(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodPost, "/retrieve/v1/processes/x/execution", http.StatusCreated, `{"status":"accepted"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	_, err := client.Submit(context.Background(), "x", map[string]interface{}{})
	assert.ErrorIs(t, err, domain.ErrInvalidResponseShape)
}

func TestSubmit_Rejected(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodPost, "/retrieve/v1/processes/x/execution", http.StatusBadRequest, `{"title":"invalid request"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	_, err := client.Submit(context.Background(), "x", map[string]interface{}{})

	var httpErr domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestDownloadResults(t *testing.T) {
	server := newMockDatastore(t)
	payload := "PK\x03\x04 zip bytes"
	server.handle(http.MethodGet, "/retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"asset": map[string]interface{}{
				"value": map[string]interface{}{
					"href":      server.URL + "/cache/abc/result.zip",
					"type":      "application/zip",
					"file:size": len(payload),
				},
			},
		})
	})
	server.respond(http.MethodGet, "/cache/abc/result.zip", http.StatusOK, payload)

	dir := filepath.Join(t.TempDir(), "downloads")
	client := newTestClient(t, server.URL, dir)

	path, err := client.DownloadResults(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "result.zip"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, string(content))
}

func TestDownloadResults_AssetOnOtherHostGetsNoToken(t *testing.T) {
	var assetToken []string
	var mu sync.Mutex
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		assetToken = append(assetToken, r.Header.Get(domain.AuthHeader))
		mu.Unlock()
		_, _ = io.WriteString(w, "CDF")
	}))
	defer assets.Close()

	server := newMockDatastore(t)
	server.handle(http.MethodGet, "/retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"asset":{"value":{"href":"`+assets.URL+`/bucket/result.nc","file:size":3}}}`)
	})

	client := newTestClient(t, server.URL, t.TempDir())
	_, err := client.DownloadResults(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "test-token", server.last().Token, "API request should carry the token")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{""}, assetToken, "asset host must not receive the token")
}

func TestDownloadResults_StreamsPastClientTimeout(t *testing.T) {
	const chunks = 6
	chunk := strings.Repeat("x", 512)

	server := newMockDatastore(t)
	server.handle(http.MethodGet, "/retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"asset": map[string]interface{}{"value": map[string]interface{}{
				"href":      server.URL + "/cache/slow.zip",
				"file:size": chunks * len(chunk),
			}},
		})
	})
	server.handle(http.MethodGet, "/cache/slow.zip", func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		for i := 0; i < chunks; i++ {
			_, _ = io.WriteString(w, chunk)
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(100 * time.Millisecond)
		}
	})

	dir := t.TempDir()
	client := newTestClientWithTimeout(t, server.URL, dir, 300*time.Millisecond)

	path, err := client.DownloadResults(context.Background(), "job-1")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(chunks*len(chunk)), info.Size())
}

func TestDownloadResults_CancelledDuringTransfer(t *testing.T) {
	server := newMockDatastore(t)
	server.handle(http.MethodGet, "/retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"asset":{"value":{"href":"`+server.URL+`/cache/stuck.nc"}}}`)
	})
	server.handle(http.MethodGet, "/cache/stuck.nc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "partial")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		<-r.Context().Done()
	})

	dir := t.TempDir()
	client := newTestClient(t, server.URL, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.DownloadResults(ctx, "job-1")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "stuck.nc"))
	assert.True(t, os.IsNotExist(statErr), "partial download should be removed")
}

func TestDownloadResults_SizeMismatch(t *testing.T) {
	server := newMockDatastore(t)
	server.handle(http.MethodGet, "/retrieve/v1/jobs/job-1/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"asset":{"value":{"href":"`+server.URL+`/cache/result.nc","file:size":100}}}`)
	})
	server.respond(http.MethodGet, "/cache/result.nc", http.StatusOK, "short")

	dir := t.TempDir()
	client := newTestClient(t, server.URL, dir)

	_, err := client.DownloadResults(context.Background(), "job-1")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "result.nc"))
	assert.True(t, os.IsNotExist(statErr), "partial download should be removed")
}

func TestDownloadResults_NotReady(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/retrieve/v1/jobs/job-1/results", http.StatusNotFound, `{"title":"results not ready"}`)
	client := newTestClient(t, server.URL, t.TempDir())

	_, err := client.DownloadResults(context.Background(), "job-1")

	var httpErr domain.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestDownloadResults_MissingHref(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/retrieve/v1/jobs/job-1/results", http.StatusOK, `{"asset":{"value":{}}}`)
	client := newTestClient(t, server.URL, t.TempDir())

	_, err := client.DownloadResults(context.Background(), "job-1")
	assert.ErrorIs(t, err, domain.ErrInvalidResponseShape)
}

func TestRequestsHonourContext(t *testing.T) {
	server := newMockDatastore(t)
	server.respond(http.MethodGet, "/retrieve/v1/jobs", http.StatusOK, `{"jobs":[]}`)
	client := newTestClient(t, server.URL, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetJobs(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
