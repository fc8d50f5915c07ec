package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agenthq/internal/domain"
)

// Responder produces an agent's reply to one incoming text message.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, text string) (string, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Server exposes one agent: its descriptor at the well-known path and
// JSON-RPC message handling at the root.
type Server struct {
	card          domain.AgentDescriptor
	responder     Responder
	wellKnownPath string
	logger        *slog.Logger
	now           func() time.Time
	mux           *http.ServeMux
}

// NewServer creates an agent server. An empty wellKnownPath uses DefaultWellKnownPath.
func NewServer(card domain.AgentDescriptor, responder Responder, wellKnownPath string, logger *slog.Logger) *Server {
	if wellKnownPath == "" {
		wellKnownPath = DefaultWellKnownPath
	}
	s := &Server{
		card:          card,
		responder:     responder,
		wellKnownPath: wellKnownPath,
		logger:        logger,
		now:           time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+wellKnownPath, s.handleCard)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	s.mux = mux
	return s
}

// Card returns the descriptor this server publishes.
func (s *Server) Card() domain.AgentDescriptor { return s.card }

// setURL fills the published url when it was left empty. Must be called before serving.
func (s *Server) setURL(u string) {
	if s.card.URL == "" {
		s.card.URL = u
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.card)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeRPCError(w, nil, CodeParseError, "failed to read request")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, CodeParseError, "parse error")
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		writeRPCError(w, req.ID, CodeInvalidRequest, "invalid request")
		return
	}
	if req.Method != MethodMessageSend && req.Method != MethodMessageStream {
		writeRPCError(w, req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
		return
	}

	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, CodeInvalidParams, "invalid params")
		return
	}
	text := strings.TrimSpace(params.Message.Text())
	if text == "" {
		writeRPCError(w, req.ID, CodeInvalidParams, "message has no text parts")
		return
	}

	reply, err := s.responder.Respond(r.Context(), text)
	if err != nil {
		s.logger.Error("responder failed", "agent", s.card.Name, "error", err)
		writeRPCError(w, req.ID, CodeInternalError, err.Error())
		return
	}

	task := NewCompletedTask(params.Message, reply, s.now())
	result, err := json.Marshal(task)
	if err != nil {
		writeRPCError(w, req.ID, CodeInternalError, "encode result")
		return
	}
	resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}

	if req.Method == MethodMessageStream {
		writeEvent(w, resp)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeEvent sends resp as the single event of a server-sent event stream.
func writeEvent(w http.ResponseWriter, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: msg},
	})
}

// IsRPCError reports whether err carries a JSON-RPC error with the given code.
func IsRPCError(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
