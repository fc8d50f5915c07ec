package domain

import (
	"errors"
	"fmt"
)

// Category sentinels shared by every subsystem.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")

	// Discovery and transport errors.
	ErrAgentUnreachable  = fmt.Errorf("agent unreachable")
	ErrAgentBadStatus    = fmt.Errorf("agent returned unexpected status")
	ErrDescriptorInvalid = fmt.Errorf("agent descriptor invalid")
	ErrAgentProtocol     = fmt.Errorf("agent protocol error")
	ErrCircuitOpen       = fmt.Errorf("agent circuit open")
	ErrAgentNotFound     = fmt.Errorf("agent not found")

	// Routing errors.
	ErrNoRoute    = fmt.Errorf("no route for message")
	ErrNoEndpoint = fmt.Errorf("no endpoint configured for agent")

	// Delegation errors.
	ErrDelegateNotFound = fmt.Errorf("tool agent not found")
	ErrUnknownTask      = fmt.Errorf("unknown task")
	ErrMissingArgument  = fmt.Errorf("missing task argument")
	ErrNoPlan           = fmt.Errorf("cannot create a plan")
	ErrFileOperation    = fmt.Errorf("file operation failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Store errors.
	ErrStoreWrite = fmt.Errorf("conversation store write failed")
	ErrStoreRead  = fmt.Errorf("conversation store read failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Register")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransportError reports whether err came from talking to a remote agent.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrAgentUnreachable) ||
		errors.Is(err, ErrAgentBadStatus) ||
		errors.Is(err, ErrAgentProtocol) ||
		errors.Is(err, ErrDescriptorInvalid) ||
		errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodePathOutside       ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeAgentUnreachable  ErrorCode = "AGENT_UNREACHABLE"
	CodeAgentBadStatus    ErrorCode = "AGENT_BAD_STATUS"
	CodeDescriptorInvalid ErrorCode = "DESCRIPTOR_INVALID"
	CodeAgentProtocol     ErrorCode = "AGENT_PROTOCOL"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeNoRoute           ErrorCode = "NO_ROUTE"
	CodeNoEndpoint        ErrorCode = "NO_ENDPOINT"
	CodeDelegateNotFound  ErrorCode = "DELEGATE_NOT_FOUND"
	CodeUnknownTask       ErrorCode = "UNKNOWN_TASK"
	CodeMissingArgument   ErrorCode = "MISSING_ARGUMENT"
	CodeNoPlan            ErrorCode = "NO_PLAN"
	CodeFileOperation     ErrorCode = "FILE_OPERATION"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeStoreWrite        ErrorCode = "STORE_WRITE"
	CodeStoreRead         ErrorCode = "STORE_READ"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrDuplicate:          CodeDuplicate,
	ErrTimeout:            CodeTimeout,
	ErrInvalidInput:       CodeInvalidInput,
	ErrConfigLoad:         CodeConfigLoad,
	ErrPathOutsideSandbox: CodePathOutside,
	ErrAgentUnreachable:   CodeAgentUnreachable,
	ErrAgentBadStatus:     CodeAgentBadStatus,
	ErrDescriptorInvalid:  CodeDescriptorInvalid,
	ErrAgentProtocol:      CodeAgentProtocol,
	ErrCircuitOpen:        CodeCircuitOpen,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrNoRoute:            CodeNoRoute,
	ErrNoEndpoint:         CodeNoEndpoint,
	ErrDelegateNotFound:   CodeDelegateNotFound,
	ErrUnknownTask:        CodeUnknownTask,
	ErrMissingArgument:    CodeMissingArgument,
	ErrNoPlan:             CodeNoPlan,
	ErrFileOperation:      CodeFileOperation,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
	ErrStoreWrite:         CodeStoreWrite,
	ErrStoreRead:          CodeStoreRead,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// ErrGatewayAuthFailed wraps ErrAuthInvalid, so the more specific one must win.
	if errors.Is(err, ErrGatewayAuthFailed) {
		return CodeGatewayAuth
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
