package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestErrorCodes verifies that error codes are defined correctly.
func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want int
	}{
		{"ParseError", ParseError, -32700},
		{"InvalidRequest", InvalidRequest, -32600},
		{"MethodNotFound", MethodNotFound, -32601},
		{"InvalidParams", InvalidParams, -32602},
		{"InternalError", InternalError, -32603},
		{"ConfigurationError", ConfigurationError, -32001},
		{"AuthenticationError", AuthenticationError, -32002},
		{"APIError", APIError, -32003},
		{"NetworkError", NetworkError, -32004},
		{"RateLimitError", RateLimitError, -32005},
		{"ResponseShapeError", ResponseShapeError, -32006},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.code, tt.want)
			}
		})
	}
}

// TestRequest_IsNotification tests that only id-less requests are notifications.
func TestRequest_IsNotification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, false},
		{"no id", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.input), &req); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := req.IsNotification(); got != tt.want {
				t.Errorf("IsNotification() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSessionIDNotSerialized tests that the routing session id stays off the wire.
func TestSessionIDNotSerialized(t *testing.T) {
	resp := &Response{JSONRPC: "2.0", ID: 1, Result: "ok", SessionID: "session-1"}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "session-1") {
		t.Errorf("expected session id to be omitted, got %s", data)
	}

	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping","SessionID":"x"}`), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.SessionID != "" {
		t.Errorf("expected session id not to be read from the wire, got %s", req.SessionID)
	}
}

// TestResponseJSONSerialization tests the shape of result and error responses.
func TestResponseJSONSerialization(t *testing.T) {
	tests := []struct {
		name     string
		response Response
		expected string
	}{
		{
			name: "tool result",
			response: Response{
				JSONRPC: "2.0",
				ID:      1,
				Result: ToolResponse{Content: []ContentBlock{
					{Type: "text", Text: "[]"},
				}},
			},
			expected: `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"[]"}]}}`,
		},
		{
			name: "shape error",
			response: Response{
				JSONRPC: "2.0",
				ID:      "req-2",
				Error: &Error{
					Code:    ResponseShapeError,
					Message: "Invalid response shape",
					Data:    map[string]string{"field": "bbox"},
				},
			},
			expected: `{"jsonrpc":"2.0","id":"req-2","error":{"code":-32006,"message":"Invalid response shape","data":{"field":"bbox"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("Marshal() = %s, want %s", data, tt.expected)
			}
		})
	}
}

// TestToolRequestDeserialization tests decoding tools/call params.
func TestToolRequestDeserialization(t *testing.T) {
	input := `{"name":"get_collection_by_id","arguments":{"collection_id":"reanalysis-era5-single-levels"}}`

	var req ToolRequest
	if err := json.Unmarshal([]byte(input), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.Name != "get_collection_by_id" {
		t.Errorf("Name = %s, want get_collection_by_id", req.Name)
	}
	if req.Arguments["collection_id"] != "reanalysis-era5-single-levels" {
		t.Errorf("Arguments = %v", req.Arguments)
	}
}

// TestJSONSchemaOmitsEmptyFields tests that an argument-less schema stays minimal.
func TestJSONSchemaOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ToolDefinition{
		Name:        "get_all_collections",
		Description: "List collections",
		InputSchema: JSONSchema{Type: "object"},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	expected := `{"name":"get_all_collections","description":"List collections","inputSchema":{"type":"object"}}`
	if string(data) != expected {
		t.Errorf("Marshal() = %s, want %s", data, expected)
	}
}
