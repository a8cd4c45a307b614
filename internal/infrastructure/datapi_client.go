package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"datapi-mcp-server/internal/domain"
)

// DatapiClient handles ECMWF Data Stores API interactions.
// It implements domain.DatapiClient with one HTTP round trip per call,
// except DownloadResults which also fetches the result asset.
type DatapiClient struct {
	baseURL     string
	httpClient  *http.Client
	downloadDir string
}

var _ domain.DatapiClient = (*DatapiClient)(nil)

// NewDatapiClient creates a new Data Stores API client.
// The baseURL is the API root (e.g., "https://cds.climate.copernicus.eu/api").
// The httpClient should be an authenticated client from the AuthenticationManager.
func NewDatapiClient(baseURL string, httpClient *http.Client, downloadDir string) *DatapiClient {
	return &DatapiClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		downloadDir: downloadDir,
	}
}

// BaseURL returns the configured API root.
func (c *DatapiClient) BaseURL() string {
	return c.baseURL
}

// Do executes an HTTP request through the authenticated client.
func (c *DatapiClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// doJSON sends a request and decodes a JSON response into out. Statuses
// other than 200 and 201 become a domain.HTTPError.
func (c *DatapiClient) doJSON(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return domain.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// endpoint joins the base URL, path segments and query parameters.
func (c *DatapiClient) endpoint(params domain.QueryParams, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	endpoint := c.baseURL + "/" + strings.Join(escaped, "/")

	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// CheckAuthentication verifies the personal access token.
// Data Stores API: POST /profiles/v1/account/verification/pat
func (c *DatapiClient) CheckAuthentication(ctx context.Context) error {
	endpoint := c.endpoint(nil, "profiles", "v1", "account", "verification", "pat")
	return c.doJSON(ctx, http.MethodPost, endpoint, nil, nil)
}

// jobsResponse is the job listing returned by the retrieve API.
type jobsResponse struct {
	Jobs []struct {
		JobID string `json:"jobID"`
	} `json:"jobs"`
}

// GetJobs lists job ids.
// Data Stores API: GET /retrieve/v1/jobs
func (c *DatapiClient) GetJobs(ctx context.Context, params domain.QueryParams) ([]string, error) {
	var response jobsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(params, "retrieve", "v1", "jobs"), nil, &response); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Jobs))
	for _, job := range response.Jobs {
		ids = append(ids, job.JobID)
	}
	return ids, nil
}

// resultsResponse describes the result asset of a finished job.
type resultsResponse struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Type string `json:"type"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

// DownloadResults writes the result asset of jobID into the download
// directory and returns the file path.
// Data Stores API: GET /retrieve/v1/jobs/{jobId}/results
func (c *DatapiClient) DownloadResults(ctx context.Context, jobID string) (string, error) {
	var results resultsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "retrieve", "v1", "jobs", jobID, "results"), nil, &results); err != nil {
		return "", err
	}

	href := results.Asset.Value.Href
	if href == "" {
		return "", &domain.ShapeError{Field: "asset.value.href", Reason: "is missing"}
	}

	assetURL, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid asset href %q: %w", href, err)
	}
	name := path.Base(assetURL.Path)
	if name == "." || name == "/" {
		name = jobID
	}
	target := filepath.Join(c.downloadDir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Result files can take longer than the API timeout to stream; only ctx
	// bounds the transfer.
	assetClient := *c.httpClient
	assetClient.Timeout = 0

	resp, err := assetClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return "", domain.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}

	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	written, err := io.Copy(file, resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	if size := results.Asset.Value.Size; size > 0 && written != size {
		_ = os.Remove(target)
		return "", fmt.Errorf("download of %s incomplete: got %d of %d bytes", name, written, size)
	}

	return target, nil
}

// collectionsResponse is the catalogue listing.
type collectionsResponse struct {
	Collections []struct {
		ID string `json:"id"`
	} `json:"collections"`
}

// GetCollections lists collection ids.
// Data Stores API: GET /catalogue/v1/datasets
func (c *DatapiClient) GetCollections(ctx context.Context, params domain.QueryParams) ([]string, error) {
	var response collectionsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(params, "catalogue", "v1", "datasets"), nil, &response); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Collections))
	for _, collection := range response.Collections {
		ids = append(ids, collection.ID)
	}
	return ids, nil
}

// collectionResponse mirrors the fields of a STAC collection the tools use.
// Extent members stay untyped so shape problems surface during validation
// rather than decoding.
type collectionResponse struct {
	ID          *string `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Published   *string `json:"published"`
	Updated     *string `json:"updated"`
	Extent      struct {
		Spatial struct {
			BBox []interface{} `json:"bbox"`
		} `json:"spatial"`
		Temporal struct {
			Interval []interface{} `json:"interval"`
		} `json:"temporal"`
	} `json:"extent"`
}

// GetCollection fetches one collection.
// Data Stores API: GET /catalogue/v1/collections/{collectionId}
func (c *DatapiClient) GetCollection(ctx context.Context, collectionID string) (*domain.CollectionRecord, error) {
	var response collectionResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint(nil, "catalogue", "v1", "collections", collectionID), nil, &response); err != nil {
		return nil, err
	}

	record := &domain.CollectionRecord{
		ID:          response.ID,
		Title:       response.Title,
		Description: response.Description,
		PublishedAt: response.Published,
		UpdatedAt:   response.Updated,
	}

	// The first bbox and interval describe the overall extent.
	if len(response.Extent.Spatial.BBox) > 0 {
		if bbox, ok := response.Extent.Spatial.BBox[0].([]interface{}); ok {
			record.BBox = bbox
		}
	}
	if len(response.Extent.Temporal.Interval) > 0 {
		if interval, ok := response.Extent.Temporal.Interval[0].([]interface{}); ok {
			record.BeginDatetime = stringAt(interval, 0)
			record.EndDatetime = stringAt(interval, 1)
		}
	}

	return record, nil
}

func stringAt(values []interface{}, i int) *string {
	if i >= len(values) {
		return nil
	}
	s, ok := values[i].(string)
	if !ok {
		return nil
	}
	return &s
}

// submitResponse is the status document of a newly created job.
type submitResponse struct {
	JobID string `json:"jobID"`
}

// Submit starts a retrieval job.
// Data Stores API: POST /retrieve/v1/processes/{collectionId}/execution
func (c *DatapiClient) Submit(ctx context.Context, collectionID string, inputs map[string]interface{}) (string, error) {
	body := map[string]interface{}{"inputs": inputs}

	var response submitResponse
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint(nil, "retrieve", "v1", "processes", collectionID, "execution"), body, &response); err != nil {
		return "", err
	}
	if response.JobID == "" {
		return "", &domain.ShapeError{Field: "jobID", Reason: "is missing"}
	}
	return response.JobID, nil
}
