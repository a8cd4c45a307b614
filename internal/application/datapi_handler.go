package application

import (
	"context"
	"fmt"

	"datapi-mcp-server/internal/domain"
)

// DatapiHandler implements ToolHandler for the Data Stores tools.
// Every tool checks authentication, performs one upstream call and maps the
// result through the ResponseMapper.
type DatapiHandler struct {
	client domain.DatapiClient
	mapper domain.ResponseMapper
}

// NewDatapiHandler creates a new DatapiHandler instance.
func NewDatapiHandler(client domain.DatapiClient, mapper domain.ResponseMapper) *DatapiHandler {
	return &DatapiHandler{
		client: client,
		mapper: mapper,
	}
}

// Tool names
const (
	ToolGetJobs           = "get_jobs"
	ToolDownloadJobResult = "download_job_result"
	ToolGetAllCollections = "get_all_collections"
	ToolGetCollectionByID = "get_collection_by_id"
	ToolSubmitJob         = "submit_job"
)

// Upstream sort orders.
const (
	jobsSortBy        = "-created"
	collectionsSortBy = "update"
)

// ToolName returns the identifier for this handler.
func (h *DatapiHandler) ToolName() string {
	return "datapi"
}

func stringArraySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func jobStatusValues() []interface{} {
	statuses := domain.JobStatuses()
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = s.String()
	}
	return values
}

// ListTools returns the five Data Stores tools.
func (h *DatapiHandler) ListTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        ToolGetJobs,
			Description: "Fetch list of jobs.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"status": map[string]interface{}{
						"type":        "string",
						"enum":        jobStatusValues(),
						"description": "Only return jobs in this state",
					},
				},
			},
		},
		{
			Name:        ToolDownloadJobResult,
			Description: "Download finished job using job id.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"job_id": map[string]interface{}{
						"type":        "string",
						"minLength":   1,
						"description": "Identifier of a successful job",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        ToolGetAllCollections,
			Description: "Get the ids of all collections available in the catalogue.",
			InputSchema: domain.JSONSchema{
				Type: "object",
			},
		},
		{
			Name:        ToolGetCollectionByID,
			Description: "Get more details for a specific collection.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"collection_id": map[string]interface{}{
						"type":        "string",
						"minLength":   1,
						"description": "Collection identifier (e.g., reanalysis-era5-single-levels)",
					},
				},
				Required: []string{"collection_id"},
			},
		},
		{
			Name:        ToolSubmitJob,
			Description: "Submit a download request.",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"download_request": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type":        "string",
								"minLength":   1,
								"description": "Collection to retrieve from",
							},
							"product_type": stringArraySchema("Product types"),
							"variable":     stringArraySchema("Variables"),
							"year":         stringArraySchema("Years"),
							"month":        stringArraySchema("Months"),
							"day":          stringArraySchema("Days"),
							"time":         stringArraySchema("Hours, defaults to all 24 hourly slots"),
							"area": map[string]interface{}{
								"type":        "array",
								"items":       map[string]interface{}{"type": "number"},
								"minItems":    4,
								"maxItems":    4,
								"description": "Bounding box as north, west, south, east; defaults to the globe",
							},
							"data_format": map[string]interface{}{
								"type":    "string",
								"default": domain.DefaultDataFormat,
							},
							"download_format": map[string]interface{}{
								"type":    "string",
								"default": domain.DefaultDownloadFormat,
							},
							"pressure_level": map[string]interface{}{
								"type":        []interface{}{"array", "null"},
								"items":       map[string]interface{}{"type": "string"},
								"description": "Pressure levels, omitted when not given",
							},
						},
						"required": []interface{}{"id", "product_type", "variable", "year", "month", "day"},
					},
				},
				Required: []string{"download_request"},
			},
		},
	}
}

// Handle processes an MCP tool call request.
func (h *DatapiHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	if req.Arguments == nil {
		req.Arguments = make(map[string]interface{})
	}

	switch req.Name {
	case ToolGetJobs:
		return h.handleGetJobs(ctx, req.Arguments)
	case ToolDownloadJobResult:
		return h.handleDownloadJobResult(ctx, req.Arguments)
	case ToolGetAllCollections:
		return h.handleGetAllCollections(ctx, req.Arguments)
	case ToolGetCollectionByID:
		return h.handleGetCollectionByID(ctx, req.Arguments)
	case ToolSubmitJob:
		return h.handleSubmitJob(ctx, req.Arguments)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown datapi tool: %s", req.Name),
		}
	}
}

// authenticate verifies the API key before any upstream operation.
func (h *DatapiHandler) authenticate(ctx context.Context) error {
	if err := h.client.CheckAuthentication(ctx); err != nil {
		return h.mapper.MapError(err)
	}
	return nil
}

// JobListParams builds the get_jobs query: newest first, optionally
// filtered by status.
func JobListParams(status *domain.JobStatus) domain.QueryParams {
	params := domain.QueryParams{"sortby": jobsSortBy}
	if status != nil {
		params["status"] = status.String()
	}
	return params
}

// handleGetJobs handles the get_jobs tool call.
func (h *DatapiHandler) handleGetJobs(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	raw, err := getStringParam(args, "status", false)
	if err != nil {
		return nil, err
	}

	var status *domain.JobStatus
	if raw != "" {
		s, err := domain.ParseJobStatus(raw)
		if err != nil {
			return nil, invalidParams("%s", err.Error())
		}
		status = &s
	}

	if err := h.authenticate(ctx); err != nil {
		return nil, err
	}

	ids, err := h.client.GetJobs(ctx, JobListParams(status))
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(ids)
}

// handleDownloadJobResult handles the download_job_result tool call.
func (h *DatapiHandler) handleDownloadJobResult(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	jobID, err := getStringParam(args, "job_id", true)
	if err != nil {
		return nil, err
	}

	if err := h.authenticate(ctx); err != nil {
		return nil, err
	}

	if _, err := h.client.DownloadResults(ctx, jobID); err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(domain.Message{Message: domain.DownloadSuccessMessage})
}

// handleGetAllCollections handles the get_all_collections tool call.
func (h *DatapiHandler) handleGetAllCollections(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	if err := h.authenticate(ctx); err != nil {
		return nil, err
	}

	ids, err := h.client.GetCollections(ctx, domain.QueryParams{"sortby": collectionsSortBy})
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(ids)
}

// handleGetCollectionByID handles the get_collection_by_id tool call.
func (h *DatapiHandler) handleGetCollectionByID(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	collectionID, err := getStringParam(args, "collection_id", true)
	if err != nil {
		return nil, err
	}

	if err := h.authenticate(ctx); err != nil {
		return nil, err
	}

	record, err := h.client.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}
	if record == nil {
		return nil, h.mapper.MapError(&domain.ShapeError{Field: "collection", Reason: "is missing"})
	}

	info, err := domain.NewCollectionInfo(*record)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(info)
}

// handleSubmitJob handles the submit_job tool call.
func (h *DatapiHandler) handleSubmitJob(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	obj, err := getObjectParam(args, "download_request", true)
	if err != nil {
		return nil, err
	}

	request, err := ParseDownloadRequest(obj)
	if err != nil {
		return nil, err
	}

	if err := h.authenticate(ctx); err != nil {
		return nil, err
	}

	requestID, err := h.client.Submit(ctx, request.ID, request.SubmissionInputs())
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(domain.DownloadResponse{
		Message:   domain.SubmitSuccessMessage,
		RequestID: requestID,
	})
}

// ParseDownloadRequest builds a DownloadRequest from tool arguments,
// applying defaults for every optional field that is not given.
func ParseDownloadRequest(obj map[string]interface{}) (*domain.DownloadRequest, error) {
	id, err := getStringParam(obj, "id", true)
	if err != nil {
		return nil, err
	}
	request := domain.NewDownloadRequest(id)

	required := []struct {
		name string
		dest *[]string
	}{
		{"product_type", &request.ProductType},
		{"variable", &request.Variable},
		{"year", &request.Year},
		{"month", &request.Month},
		{"day", &request.Day},
	}
	for _, f := range required {
		values, _, err := getStringSliceParam(obj, f.name, true)
		if err != nil {
			return nil, err
		}
		*f.dest = values
	}

	if times, ok, err := getStringSliceParam(obj, "time", false); err != nil {
		return nil, err
	} else if ok {
		request.Time = times
	}

	if area, ok, err := getBBoxParam(obj, "area"); err != nil {
		return nil, err
	} else if ok {
		request.Area = area
	}

	if format, ok, err := getOptionalStringParam(obj, "data_format"); err != nil {
		return nil, err
	} else if ok {
		request.DataFormat = format
	}

	if format, ok, err := getOptionalStringParam(obj, "download_format"); err != nil {
		return nil, err
	} else if ok {
		request.DownloadFormat = format
	}

	if levels, ok, err := getStringSliceParam(obj, "pressure_level", false); err != nil {
		return nil, err
	} else if ok {
		request.PressureLevel = domain.Some(levels)
	}

	return request, nil
}
