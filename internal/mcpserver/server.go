// Package mcpserver serves the memory tools as a JSON-RPC dispatcher over
// a Content-Length framed stream. Requests are handled one at a time, in
// the order they arrive.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mindforge/internal/apperr"
	"github.com/starford/mindforge/internal/diag"
	"github.com/starford/mindforge/internal/memory"
	"github.com/starford/mindforge/internal/models"
	"github.com/starford/mindforge/internal/transport"
)

// Server identity reported in the handshake.
const (
	ServerName      = "mindforge"
	ServerVersion   = "2.0.1"
	ProtocolVersion = "2024-11-05"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether no reply is expected.
func (r *request) isNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    capabilities       `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type capabilities struct {
	Tools struct{} `json:"tools"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Server dispatches protocol requests to the memory service.
type Server struct {
	svc        *memory.Service
	diag       *diag.Log
	logger     *slog.Logger
	limits     Limits
	maxMessage int
	tools      []mcp.Tool
	handlers   map[string]handlerFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLimits sets the argument size limits.
func WithLimits(l Limits) Option {
	return func(s *Server) {
		if l.MaxPayloadBytes > 0 {
			s.limits.MaxPayloadBytes = l.MaxPayloadBytes
		}
		if l.MaxFieldBytes > 0 {
			s.limits.MaxFieldBytes = l.MaxFieldBytes
		}
	}
}

// WithMaxMessage caps the size of a single framed message.
func WithMaxMessage(n int) Option {
	return func(s *Server) { s.maxMessage = n }
}

// New creates a new server with all memory tools registered.
func New(svc *memory.Service, dlog *diag.Log, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		diag:   dlog,
		logger: logger,
		limits: Limits{MaxPayloadBytes: DefaultMaxPayloadBytes, MaxFieldBytes: DefaultMaxFieldBytes},
		tools:  catalog(),
	}
	for _, o := range opts {
		o(s)
	}

	s.handlers = map[string]handlerFunc{
		ToolStatus: func(ctx context.Context, _ json.RawMessage) (string, error) {
			return s.svc.Status(ctx)
		},
		ToolSearch: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var a models.SearchArgs
			if err := decode(raw, &a, searchRules); err != nil {
				return "", err
			}
			return s.svc.Search(ctx, a)
		},
		ToolUpdateState: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var u models.StateUpdate
			if err := decode(raw, &u, nil); err != nil {
				return "", err
			}
			return s.svc.UpdateState(ctx, u)
		},
		ToolSaveDecision: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var d models.Decision
			if err := decode(raw, &d, decisionRules); err != nil {
				return "", err
			}
			return s.svc.SaveDecision(ctx, d)
		},
		ToolSaveProgress: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var p models.ProgressTask
			if err := decode(raw, &p, progressRules); err != nil {
				return "", err
			}
			return s.svc.SaveProgress(ctx, p)
		},
		ToolSaveSession: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var sess models.Session
			if err := decode(raw, &sess, sessionRules); err != nil {
				return "", err
			}
			return s.svc.SaveSession(ctx, sess)
		},
	}
	return s
}

// Tools returns the tool catalog.
func (s *Server) Tools() []mcp.Tool {
	return s.tools
}

// Serve reads framed requests from in and writes replies to out until in
// ends or ctx is cancelled. Bad frames are logged and skipped.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	r := transport.NewReader(in, s.maxMessage)
	w := transport.NewWriter(out)

	for {
		if ctx.Err() != nil {
			return nil
		}
		body, err := r.ReadMessage()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			s.logger.Info("mcp: input closed")
			return nil
		case errors.Is(err, transport.ErrMessageTooLarge),
			errors.Is(err, transport.ErrMissingLength),
			errors.Is(err, transport.ErrHeaderTooLarge):
			s.logger.Warn("mcp: skipped frame", slog.String("error", err.Error()))
			s.diag.Record(diag.CategoryTransport, "skipped frame", slog.String("error", err.Error()))
			continue
		case err != nil:
			return fmt.Errorf("mcp: read: %w", err)
		}

		reply := s.Handle(ctx, body)
		if reply == nil {
			continue
		}
		if err := w.WriteMessage(reply); err != nil {
			return fmt.Errorf("mcp: write: %w", err)
		}
	}
}

// Handle processes one message body and returns the encoded reply, or nil
// when none is due.
func (s *Server) Handle(ctx context.Context, body []byte) []byte {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("mcp: unparsable message", slog.String("error", err.Error()))
		s.diag.Record(diag.CategoryTransport, "unparsable message", slog.String("error", err.Error()))
		return nil
	}
	if req.isNotification() {
		s.logger.Debug("mcp: notification", slog.String("method", req.Method))
		return nil
	}

	resp := response{JSONRPC: mcp.JSONRPC_VERSION, ID: req.ID}
	switch mcp.MCPMethod(req.Method) {
	case mcp.MethodInitialize:
		resp.Result = initializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      mcp.Implementation{Name: ServerName, Version: ServerVersion},
			Instructions:    Instructions,
		}
	case mcp.MethodPing:
		resp.Result = struct{}{}
	case mcp.MethodToolsList:
		resp.Result = mcp.ListToolsResult{Tools: s.tools}
	case mcp.MethodToolsCall:
		var p callParams
		if err := json.Unmarshal(orEmpty(req.Params), &p); err != nil {
			resp.Error = &rpcError{Code: mcp.INVALID_PARAMS, Message: "Invalid params: " + err.Error()}
			break
		}
		resp.Result = s.call(ctx, p)
	default:
		resp.Error = &rpcError{Code: mcp.METHOD_NOT_FOUND, Message: "Method not found: " + req.Method}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: encode reply", slog.String("error", err.Error()))
		out, _ = json.Marshal(response{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Error:   &rpcError{Code: mcp.INTERNAL_ERROR, Message: "Internal error"},
		})
	}
	return out
}

// call validates the arguments and runs the named tool. Failures become
// error results; nothing here ends the stream.
func (s *Server) call(ctx context.Context, p callParams) (result *mcp.CallToolResult) {
	handler, ok := s.handlers[p.Name]
	if !ok {
		return mcp.NewToolResultError("Unknown tool: " + p.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mcp: tool panicked", slog.String("tool", p.Name), slog.Any("panic", r))
			s.diag.Record(diag.CategoryPanic, fmt.Sprint(r),
				slog.String("tool", p.Name),
				slog.String("stack", string(debug.Stack())))
			result = mcp.NewToolResultError(fmt.Sprintf("Error: %v", r))
		}
	}()

	raw := orEmpty(p.Arguments)
	if err := s.limits.checkSize(raw); err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	text, err := handler(ctx, raw)
	if err != nil {
		if apperr.IsUser(err) {
			return mcp.NewToolResultError(err.Error())
		}
		s.logger.Error("mcp: tool failed", slog.String("tool", p.Name), slog.String("error", err.Error()))
		s.diag.Record(diag.CategoryTool, err.Error(), slog.String("tool", p.Name))
		return mcp.NewToolResultError("Error: " + err.Error())
	}
	return mcp.NewToolResultText(text)
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return json.RawMessage("{}")
	}
	return raw
}
