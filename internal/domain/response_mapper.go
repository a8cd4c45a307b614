package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultResponseMapper is the default implementation of ResponseMapper.
// It renders tool results as indented JSON text blocks.
type DefaultResponseMapper struct{}

// NewResponseMapper creates a new instance of DefaultResponseMapper.
func NewResponseMapper() ResponseMapper {
	return &DefaultResponseMapper{}
}

// MapToToolResponse converts a tool result to MCP format.
// A nil result is rendered as an empty JSON object; a nil slice as an
// empty JSON array.
func (m *DefaultResponseMapper) MapToToolResponse(result interface{}) (*ToolResponse, error) {
	if result == nil {
		return &ToolResponse{
			Content: []ContentBlock{
				{
					Type: "text",
					Text: "{}",
				},
			},
		}, nil
	}

	if ids, ok := result.([]string); ok && ids == nil {
		result = []string{}
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}

	return &ToolResponse{
		Content: []ContentBlock{
			{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

// MapError converts an error to MCP error format.
func (m *DefaultResponseMapper) MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return mapHTTPError(httpErr)
	}

	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return &Error{
			Code:    ResponseShapeError,
			Message: "Invalid response shape",
			Data: map[string]interface{}{
				"field":  shapeErr.Field,
				"reason": shapeErr.Reason,
			},
		}
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{
			Code:    NetworkError,
			Message: "Request cancelled or timed out",
			Data:    err.Error(),
		}
	}

	return &Error{
		Code:    InternalError,
		Message: err.Error(),
	}
}

// HTTPError represents a non-success HTTP response from the Data Stores API.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

// Error implements the error interface for HTTPError.
func (e HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(statusCode int, message string, body string) HTTPError {
	return HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}

// mapHTTPError maps HTTP status codes to JSON-RPC error codes.
func mapHTTPError(httpErr HTTPError) *Error {
	var code int
	var message string

	switch httpErr.StatusCode {
	case http.StatusUnauthorized:
		code = AuthenticationError
		message = "Authentication failed"
	case http.StatusForbidden:
		code = AuthenticationError
		message = "Access forbidden - licence not accepted or insufficient permissions"
	case http.StatusNotFound:
		code = APIError
		message = "Resource not found"
	case http.StatusBadRequest:
		code = InvalidParams
		message = "Bad request - invalid parameters"
	case http.StatusUnprocessableEntity:
		code = InvalidParams
		message = "Request rejected - invalid parameter combination"
	case http.StatusTooManyRequests:
		code = RateLimitError
		message = "Rate limit exceeded"
	case http.StatusInternalServerError:
		code = APIError
		message = "Internal server error"
	case http.StatusServiceUnavailable:
		code = NetworkError
		message = "Service unavailable"
	case http.StatusGatewayTimeout:
		code = NetworkError
		message = "Gateway timeout"
	default:
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			code = APIError
			message = fmt.Sprintf("Client error: %s", httpErr.Message)
		} else if httpErr.StatusCode >= 500 {
			code = APIError
			message = fmt.Sprintf("Server error: %s", httpErr.Message)
		} else {
			code = InternalError
			message = httpErr.Message
		}
	}

	errorData := map[string]interface{}{
		"statusCode": httpErr.StatusCode,
		"message":    httpErr.Message,
	}
	if httpErr.Body != "" {
		errorData["body"] = httpErr.Body
	}

	return &Error{
		Code:    code,
		Message: message,
		Data:    errorData,
	}
}
