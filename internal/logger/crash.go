package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// crashLogDir is the directory for crash logs relative to the data dir.
	crashLogDir = "crash_logs"

	// maxCrashLogs is the maximum number of crash logs to keep.
	maxCrashLogs = 10
)

// CrashContext stores context attached to crash reports.
type CrashContext struct {
	mu       sync.RWMutex
	command  string
	runID    string
	goal     string
	version  string
	basePath string
}

var globalContext = &CrashContext{}

// SetBasePath sets the base path for crash logs (typically ~/.ikoma).
func SetBasePath(path string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.basePath = path
}

// SetVersion sets the application version for crash logs.
func SetVersion(version string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.version = version
}

// SetCommand sets the current command being executed.
func SetCommand(cmd string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.command = cmd
}

// SetRun records the active run and goal so crash reports can be tied back
// to a checkpointed run.
func SetRun(runID, goal string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.runID = runID
	globalContext.goal = truncateForLog(strings.TrimSpace(goal), 500)
}

func truncateForLog(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "... [truncated]"
}

// CrashLog represents a crash log entry.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Command    string    `json:"command"`
	RunID      string    `json:"run_id,omitempty"`
	Goal       string    `json:"goal,omitempty"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// HandlePanic is a deferred function that recovers from panics and logs them.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	if r := recover(); r != nil {
		log := createCrashLog(r)
		path, err := writeCrashLog(log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n[CRASH] failed to write crash log: %v\n", err)
			fmt.Fprintf(os.Stderr, "[CRASH] panic: %v\n%s\n", r, debug.Stack())
		} else {
			fmt.Fprintf(os.Stderr, "\nikoma encountered an unexpected error.\nA crash log has been saved to:\n  %s\n", path)
		}
		os.Exit(1)
	}
}

func createCrashLog(panicValue any) CrashLog {
	globalContext.mu.RLock()
	defer globalContext.mu.RUnlock()

	return CrashLog{
		Timestamp:  time.Now().UTC(),
		Version:    globalContext.version,
		Command:    globalContext.command,
		RunID:      globalContext.runID,
		Goal:       globalContext.goal,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

func crashLogBase() string {
	globalContext.mu.RLock()
	base := globalContext.basePath
	globalContext.mu.RUnlock()

	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".ikoma")
		} else {
			base = "."
		}
	}
	return filepath.Join(base, crashLogDir)
}

func writeCrashLog(log CrashLog) (string, error) {
	dir := crashLogBase()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("crash-%s.json", log.Timestamp.Format("20060102-150405")))
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write crash log: %w", err)
	}

	pruneCrashLogs(dir)
	return path, nil
}

// pruneCrashLogs keeps only the newest maxCrashLogs entries.
func pruneCrashLogs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= maxCrashLogs {
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-maxCrashLogs] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
