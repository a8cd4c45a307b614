package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"datapi-mcp-server/internal/domain"
)

// Server identity reported during initialize.
const (
	ServerName      = "datapi-mcp-server"
	ServerVersion   = "1.0.0"
	ProtocolVersion = "2024-11-05"
)

// Server is the main MCP server implementation.
// It orchestrates the transport layer and request routing, and implements
// the MCP protocol methods.
type Server struct {
	transport domain.Transport
	router    *RequestRouter
	mapper    domain.ResponseMapper
	config    *domain.Config
	logger    *StructuredLogger
	done      chan struct{}
}

// NewServer creates a new MCP server instance.
func NewServer(
	transport domain.Transport,
	router *RequestRouter,
	mapper domain.ResponseMapper,
	config *domain.Config,
	logger *StructuredLogger,
) *Server {
	if logger == nil {
		logger = NewStructuredLogger()
	}
	return &Server{
		transport: transport,
		router:    router,
		mapper:    mapper,
		config:    config,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start starts the transport and begins processing incoming requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		s.logger.LogError("failed to start transport", err, map[string]interface{}{
			"transport_type": s.config.Transport.Type,
		})
		return fmt.Errorf("failed to start transport: %w", err)
	}

	s.logger.LogInfo("server started", map[string]interface{}{
		"transport_type":          s.config.Transport.Type,
		"max_concurrent_requests": s.config.Server.MaxConcurrentRequests,
	})

	go s.processRequests(ctx)

	return nil
}

// Done is closed once request processing has stopped and in-flight
// requests have finished.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// processRequests handles incoming requests concurrently, bounded by the
// configured limit.
func (s *Server) processRequests(ctx context.Context) {
	defer close(s.done)

	var g errgroup.Group
	limit := s.config.Server.MaxConcurrentRequests
	if limit <= 0 {
		limit = domain.DefaultMaxConcurrentRequests
	}
	g.SetLimit(limit)
	defer g.Wait()

	reqChan := s.transport.Receive()

	for {
		select {
		case <-ctx.Done():
			s.logger.LogInfo("server shutting down", nil)
			return
		case req, ok := <-reqChan:
			if !ok {
				return
			}
			g.Go(func() error {
				s.handleRequest(ctx, req)
				return nil
			})
		}
	}
}

// handleRequest processes a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, req *domain.Request) {
	s.logger.LogInfo("received request", map[string]interface{}{
		"method":     req.Method,
		"request_id": req.ID,
	})

	if err := s.validateRequest(req); err != nil {
		s.sendErrorResponse(req, domain.InvalidRequest, "Invalid Request", err.Error())
		return
	}

	// Notifications such as notifications/initialized expect no reply.
	if req.IsNotification() || strings.HasPrefix(req.Method, "notifications/") {
		return
	}

	var response *domain.Response
	var err error

	switch req.Method {
	case "initialize":
		response = s.handleInitialize(req)
	case "ping":
		response = s.result(req, map[string]interface{}{})
	case "tools/list":
		response = s.handleToolsList(req)
	case "tools/call":
		response, err = s.handleToolsCall(ctx, req)
	default:
		s.sendErrorResponse(req, domain.MethodNotFound, "Method not found", fmt.Sprintf("unknown method: %s", req.Method))
		return
	}

	if err != nil {
		s.logger.LogError("request processing failed", err, map[string]interface{}{
			"method":     req.Method,
			"request_id": req.ID,
		})
		// Error response already sent by handler
		return
	}

	if err := s.transport.Send(response); err != nil {
		s.logger.LogError("failed to send response", err, map[string]interface{}{
			"request_id": req.ID,
		})
	}
}

// validateRequest validates the basic structure of a JSON-RPC request.
func (s *Server) validateRequest(req *domain.Request) error {
	if req.JSONRPC != "2.0" {
		return fmt.Errorf("invalid jsonrpc version: %s", req.JSONRPC)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

func (s *Server) result(req *domain.Request, result interface{}) *domain.Response {
	return &domain.Response{
		JSONRPC:   "2.0",
		ID:        req.ID,
		Result:    result,
		SessionID: req.SessionID,
	}
}

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(req *domain.Request) *domain.Response {
	return s.result(req, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
}

// handleToolsList returns all registered tools.
func (s *Server) handleToolsList(req *domain.Request) *domain.Response {
	return s.result(req, map[string]interface{}{
		"tools": s.router.ListAllTools(),
	})
}

// handleToolsCall executes a tool call through the router.
func (s *Server) handleToolsCall(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	toolReq, err := s.parseToolRequest(req.Params)
	if err != nil {
		s.sendErrorResponse(req, domain.InvalidParams, "Invalid params", err.Error())
		return nil, err
	}

	toolResp, err := s.router.Route(ctx, toolReq)
	if err != nil {
		s.logger.LogError("tool execution failed", err, map[string]interface{}{
			"tool":       toolReq.Name,
			"request_id": req.ID,
		})

		rpcErr := s.mapper.MapError(err)
		s.sendErrorResponse(req, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return nil, err
	}

	return s.result(req, toolResp), nil
}

// parseToolRequest parses the params field into a ToolRequest.
func (s *Server) parseToolRequest(params interface{}) (*domain.ToolRequest, error) {
	if params == nil {
		return nil, errors.New("params is required for tools/call")
	}

	// Round-trip through JSON to accept both decoded maps and structs.
	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var toolReq domain.ToolRequest
	if err := json.Unmarshal(jsonData, &toolReq); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool request: %w", err)
	}

	if toolReq.Name == "" {
		return nil, errors.New("tool name is required")
	}

	if toolReq.Arguments == nil {
		toolReq.Arguments = make(map[string]interface{})
	}

	return &toolReq, nil
}

// sendErrorResponse sends a JSON-RPC error response.
func (s *Server) sendErrorResponse(req *domain.Request, code int, message string, data interface{}) {
	response := &domain.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &domain.Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		SessionID: req.SessionID,
	}

	if err := s.transport.Send(response); err != nil {
		s.logger.LogError("failed to send error response", err, map[string]interface{}{
			"request_id":    req.ID,
			"error_code":    code,
			"error_message": message,
		})
	}
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	s.logger.LogInfo("closing server", nil)
	return s.transport.Close()
}
