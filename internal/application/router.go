package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"datapi-mcp-server/internal/domain"
	"datapi-mcp-server/internal/observe"
)

// registeredTool binds a tool definition to its handler and compiled
// input schema.
type registeredTool struct {
	definition domain.ToolDefinition
	handler    domain.ToolHandler
	schema     *jsonschema.Schema
}

// RequestRouter dispatches MCP tool requests to the ToolHandler that
// declared the tool. Arguments are validated against the tool's input
// schema before the handler runs.
type RequestRouter struct {
	tools   map[string]*registeredTool
	order   []string
	metrics *observe.Metrics
}

// NewRequestRouter registers every tool of every handler. Duplicate tool
// names and uncompilable schemas are rejected. A nil metrics disables
// instrumentation.
func NewRequestRouter(metrics *observe.Metrics, handlers ...domain.ToolHandler) (*RequestRouter, error) {
	router := &RequestRouter{
		tools:   make(map[string]*registeredTool),
		metrics: metrics,
	}

	for _, handler := range handlers {
		for _, def := range handler.ListTools() {
			if _, dup := router.tools[def.Name]; dup {
				return nil, fmt.Errorf("tool %s registered twice", def.Name)
			}
			schema, err := compileInputSchema(def)
			if err != nil {
				return nil, err
			}
			router.tools[def.Name] = &registeredTool{
				definition: def,
				handler:    handler,
				schema:     schema,
			}
			router.order = append(router.order, def.Name)
		}
	}

	return router, nil
}

// compileInputSchema compiles a tool's input schema.
func compileInputSchema(def domain.ToolDefinition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to marshal input schema: %w", def.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to decode input schema: %w", def.Name, err)
	}

	location := def.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(location, doc); err != nil {
		return nil, fmt.Errorf("tool %s: failed to add input schema: %w", def.Name, err)
	}
	schema, err := c.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("tool %s: invalid input schema: %w", def.Name, err)
	}
	return schema, nil
}

// validateArguments checks args against the compiled schema.
func validateArguments(schema *jsonschema.Schema, args map[string]interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return schema.Validate(inst)
}

// Route dispatches a tool request to the handler that declared the tool.
// Returns an error if the tool name is unknown, the arguments do not match
// the input schema, or the handler fails.
func (r *RequestRouter) Route(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	tool, exists := r.tools[req.Name]
	if !exists {
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: "Tool not found",
			Data:    fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}

	if req.Arguments == nil {
		req.Arguments = make(map[string]interface{})
	}

	if err := validateArguments(tool.schema, req.Arguments); err != nil {
		return nil, &domain.Error{
			Code:    domain.InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	ctx, span := observe.StartSpan(ctx, "tool "+req.Name,
		trace.WithAttributes(
			attribute.String("tool", req.Name),
			attribute.String("handler", tool.handler.ToolName()),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := tool.handler.Handle(ctx, req)
	if r.metrics != nil {
		r.metrics.RecordToolCall(ctx, req.Name, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return resp, err
}

// ListAllTools returns every registered tool definition in registration
// order.
func (r *RequestRouter) ListAllTools() []domain.ToolDefinition {
	tools := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].definition)
	}
	return tools
}
