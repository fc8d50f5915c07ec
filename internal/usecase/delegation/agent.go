package delegation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"agenthq/internal/domain"
	"agenthq/internal/security"
)

// Agent is a leaf that handles one concern.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, task string, args Args) Result
}

const (
	CodeAgentName       = "CodeAgent"
	FileSystemAgentName = "FileSystemAgent"
)

// CodeAgent produces code from a small fixed template match.
type CodeAgent struct{}

func (CodeAgent) Name() string { return CodeAgentName }

func (CodeAgent) Description() string {
	return "Generates code based on a prompt. Keywords: code, generate, script."
}

func (CodeAgent) Run(_ context.Context, task string, _ Args) Result {
	if strings.Contains(strings.ToLower(task), "hello world") {
		return OK("print('Hello, World from the Code Agent!')")
	}
	return OK(fmt.Sprintf("# Code for task: %s\npass", task))
}

// FileSystemAgent lists, reads and writes files inside a sandbox.
// The operation is picked from the task text: list, then read, then write.
type FileSystemAgent struct {
	sandbox *security.Sandbox
}

// NewFileSystemAgent creates a FileSystemAgent confined to sandbox.
func NewFileSystemAgent(sandbox *security.Sandbox) *FileSystemAgent {
	return &FileSystemAgent{sandbox: sandbox}
}

func (a *FileSystemAgent) Name() string { return FileSystemAgentName }

func (a *FileSystemAgent) Description() string {
	return "Handles file system operations. Keywords: list, read, write file, directory."
}

func (a *FileSystemAgent) Run(ctx context.Context, task string, args Args) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: domain.WrapOp("FileSystemAgent.Run", err)}
	}

	lower := strings.ToLower(task)
	switch {
	case strings.Contains(lower, "list"):
		return a.list(args["path"])
	case strings.Contains(lower, "read"):
		path, ok := args["path"]
		if !ok || path == "" {
			return Fail(domain.ErrMissingArgument, "Error: Path not specified for read operation.")
		}
		return a.read(path)
	case strings.Contains(lower, "write"):
		path := args["path"]
		content := args["content"]
		if path == "" || content == "" {
			return Fail(domain.ErrMissingArgument, "Error: Path or content not specified for write operation.")
		}
		return a.write(path, content)
	default:
		return Fail(domain.ErrUnknownTask, "Unknown task: %s", task)
	}
}

func (a *FileSystemAgent) list(path string) Result {
	if path == "" {
		path = "."
	}
	resolved, err := a.sandbox.Resolve(path)
	if err != nil {
		return Fail(domain.ErrPathOutsideSandbox, "Error listing files: %v", err)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Fail(domain.ErrFileOperation, "Error listing files: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return OK(strings.Join(names, "\n"))
}

func (a *FileSystemAgent) read(path string) Result {
	resolved, err := a.sandbox.Resolve(path)
	if err != nil {
		return Fail(domain.ErrPathOutsideSandbox, "Error reading file: %v", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Fail(domain.ErrFileOperation, "Error reading file: %v", err)
	}
	return OK(string(data))
}

func (a *FileSystemAgent) write(path, content string) Result {
	resolved, err := a.sandbox.Resolve(path)
	if err != nil {
		return Fail(domain.ErrPathOutsideSandbox, "Error writing to file: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return Fail(domain.ErrFileOperation, "Error writing to file: %v", err)
	}
	return OK(fmt.Sprintf("Successfully wrote to %s", path))
}
