// Package a2a speaks the agent-to-agent wire protocol: descriptor discovery at
// a well-known path and JSON-RPC 2.0 message exchange over HTTP.
package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSON-RPC method names.
const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

const jsonrpcVersion = "2.0"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// Part is one piece of message or artifact content. Only text parts are produced.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is a single conversational turn.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == "text" || p.Kind == "" {
			out += p.Text
		}
	}
	return out
}

// TaskStatus is the state of a task at a point in time.
type TaskStatus struct {
	State     string `json:"state"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Artifact is an output attached to a task.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// Task is the result object returned for message/send.
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
}

// Task states used by this package.
const (
	TaskStateCompleted = "completed"
	TaskStateFailed    = "failed"
)

// NewUserMessage builds a user text message with a fresh id.
func NewUserMessage(text string) Message {
	return Message{
		Kind:      "message",
		MessageID: uuid.NewString(),
		Role:      "user",
		Parts:     []Part{{Kind: "text", Text: text}},
	}
}

// NewCompletedTask wraps reply as the single text artifact of a completed task.
func NewCompletedTask(in Message, reply string, now time.Time) Task {
	contextID := in.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	taskID := in.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	return Task{
		Kind:      "task",
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateCompleted, Timestamp: now.UTC().Format(time.RFC3339)},
		Artifacts: []Artifact{{
			ArtifactID: uuid.NewString(),
			Name:       "response",
			Parts:      []Part{{Kind: "text", Text: reply}},
		}},
		History: []Message{in},
	}
}

// newRequest builds a JSON-RPC request with a fresh string id.
func newRequest(method string, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, err
	}
	id, _ := json.Marshal(uuid.NewString())
	return Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: raw}, nil
}
