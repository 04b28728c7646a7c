package tools

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// createFileSeparator splits the combined name/content argument. Plans carry
// a single string because nested objects round-trip poorly through LLM JSON.
const createFileSeparator = "|||"

// Sandbox is the jailed filesystem the file tools operate on. Paths are
// resolved relative to the sandbox root; escapes are rejected before any
// filesystem call.
type Sandbox struct {
	fs afero.Fs
}

// NewSandbox roots a sandbox at dir on the OS filesystem.
func NewSandbox(dir string) *Sandbox {
	return &Sandbox{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewSandboxFs wraps an existing filesystem, used by tests.
func NewSandboxFs(fs afero.Fs) *Sandbox {
	return &Sandbox{fs: fs}
}

// cleanPath normalizes a sandbox-relative path and rejects escapes.
func cleanPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("file name required")
	}
	cleaned := filepath.Clean("/" + name)
	if cleaned == "/" {
		return "", fmt.Errorf("file name required")
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// CreateTextFileTool writes a text file into the sandbox.
type CreateTextFileTool struct {
	Sandbox *Sandbox
}

func (t *CreateTextFileTool) Name() string     { return "create_text_file" }
func (t *CreateTextFileTool) Category() string { return "filesystem" }

func (t *CreateTextFileTool) Description() string {
	return "Create a text file in the sandbox with the given content"
}

func (t *CreateTextFileTool) ArgsSchema() map[string]string {
	return map[string]string{
		"input": "string, \"filename" + createFileSeparator + "content\"",
	}
}

func (t *CreateTextFileTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	input, _ := args["input"].(string)
	name, content, found := strings.Cut(input, createFileSeparator)
	if !found {
		return "", fmt.Errorf("input must be %q-separated file name and content", createFileSeparator)
	}

	rel, err := cleanPath(name)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(rel); dir != "." {
		if err := t.Sandbox.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(t.Sandbox.fs, rel, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return fmt.Sprintf("Created %s (%d bytes)", rel, len(content)), nil
}

// ReadTextFileTool reads a text file from the sandbox.
type ReadTextFileTool struct {
	Sandbox *Sandbox
}

func (t *ReadTextFileTool) Name() string        { return "read_text_file" }
func (t *ReadTextFileTool) Category() string    { return "filesystem" }
func (t *ReadTextFileTool) Description() string { return "Read a text file from the sandbox" }

func (t *ReadTextFileTool) ArgsSchema() map[string]string {
	return map[string]string{"name": "string, the file name"}
}

func (t *ReadTextFileTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	if name == "" {
		name, _ = args["input"].(string)
	}
	rel, err := cleanPath(name)
	if err != nil {
		return "", err
	}
	data, err := afero.ReadFile(t.Sandbox.fs, rel)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

// ListSandboxFilesTool lists files currently in the sandbox.
type ListSandboxFilesTool struct {
	Sandbox *Sandbox
}

func (t *ListSandboxFilesTool) Name() string        { return "list_sandbox_files" }
func (t *ListSandboxFilesTool) Category() string    { return "filesystem" }
func (t *ListSandboxFilesTool) Description() string { return "List files in the sandbox" }

func (t *ListSandboxFilesTool) ArgsSchema() map[string]string {
	return map[string]string{}
}

func (t *ListSandboxFilesTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	var files []string
	err := afero.Walk(t.Sandbox.fs, ".", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, strings.TrimPrefix(path, "./"))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("list sandbox: %w", err)
	}
	if len(files) == 0 {
		return "Sandbox is empty", nil
	}
	sort.Strings(files)
	return strings.Join(files, "\n"), nil
}
