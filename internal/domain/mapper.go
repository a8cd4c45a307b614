package domain

// ResponseMapper converts API responses to MCP tool responses.
type ResponseMapper interface {
	// MapToToolResponse converts a tool result value to MCP format.
	// Returns an error if the value cannot be serialized.
	MapToToolResponse(result interface{}) (*ToolResponse, error)

	// MapError converts an upstream or validation error to a JSON-RPC
	// error. Data Stores HTTP statuses and shape failures get their own
	// codes.
	MapError(err error) *Error
}
