package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
)

// LogPrefix starts the name of every log file this server writes.
const LogPrefix = "bevy_brp_mcp_"

// maxReadLines caps how many lines read_log returns without tail_lines.
const maxReadLines = 2000

// timeNow is a package-level var so tests can pin the clock.
var timeNow = time.Now

// LogInfo describes one log file.
type LogInfo struct {
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	Modified  string `json:"modified"`
	Age       string `json:"age"`
	Active    bool   `json:"active,omitempty"`
}

// validateLogName rejects anything that is not a bare log file name of ours.
func validateLogName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("'filename' is required")
	case filepath.Base(name) != name || strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
		return fmt.Errorf("'filename' must be a bare file name, got %q", name)
	case !strings.HasPrefix(name, LogPrefix) || !strings.HasSuffix(name, ".log"):
		return fmt.Errorf("'filename' must start with %q and end with .log, got %q", LogPrefix, name)
	}
	return nil
}

// matchesApp reports whether a log file belongs to app. An empty app
// matches every log.
func matchesApp(name, app string) bool {
	if app == "" {
		return true
	}
	return strings.HasPrefix(name, LogPrefix+app+"_")
}

// scanLogs returns our log files in dir, newest first.
func scanLogs(dir, app string, active map[string]bool) ([]LogInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log dir %s: %w", dir, err)
	}

	now := timeNow()
	var out []LogInfo
	var modTimes = make(map[string]time.Time)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || validateLogName(name) != nil || !matchesApp(name, app) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		modTimes[name] = info.ModTime()
		out = append(out, LogInfo{
			Filename:  name,
			Path:      path,
			SizeBytes: info.Size(),
			Size:      humanize.Bytes(uint64(info.Size())),
			Modified:  info.ModTime().Format(time.RFC3339),
			Age:       humanize.RelTime(info.ModTime(), now, "ago", "from now"),
			Active:    active[path],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return modTimes[out[i].Filename].After(modTimes[out[j].Filename])
	})
	return out, nil
}

// activePaths returns the log paths of the watcher's active watches.
func activePaths(w Watcher) map[string]bool {
	out := make(map[string]bool)
	if w == nil {
		return out
	}
	for _, s := range w.List() {
		out[s.LogPath] = true
	}
	return out
}

// --- list_logs ---

// ListLogsTool handles the list_logs MCP tool.
type ListLogsTool struct {
	dir     string
	watcher Watcher
}

// NewListLogsTool creates a ListLogsTool over the logs in dir. w marks
// which files belong to active watches and may be nil.
func NewListLogsTool(dir string, w Watcher) *ListLogsTool {
	return &ListLogsTool{dir: dir, watcher: w}
}

// Definition returns the MCP tool definition for registration.
func (t *ListLogsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_logs",
		mcp.WithDescription(
			"List log files written by this server, newest first, with size and age. "+
				"Watch logs are named bevy_brp_mcp_watch_<id>_<get|list>_<entity>_<time>.log.",
		),
		mcp.WithString("app_name",
			mcp.Description("Only list logs whose name continues with this after the prefix, e.g. 'watch'."),
		),
	)
}

// Handle processes the list_logs tool call.
func (t *ListLogsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app := strings.TrimSpace(req.GetString("app_name", ""))
	logs, err := scanLogs(t.dir, app, activePaths(t.watcher))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if logs == nil {
		logs = []LogInfo{}
	}

	var total int64
	for _, l := range logs {
		total += l.SizeBytes
	}
	return jsonResult(map[string]any{
		"status":    statusSuccess,
		"message":   fmt.Sprintf("Found %d log file(s), %s total", len(logs), humanize.Bytes(uint64(total))),
		"directory": t.dir,
		"count":     len(logs),
		"logs":      logs,
	})
}

// --- read_log ---

// ReadLogTool handles the read_log MCP tool.
type ReadLogTool struct {
	dir string
}

// NewReadLogTool creates a ReadLogTool over the logs in dir.
func NewReadLogTool(dir string) *ReadLogTool {
	return &ReadLogTool{dir: dir}
}

// Definition returns the MCP tool definition for registration.
func (t *ReadLogTool) Definition() mcp.Tool {
	return mcp.NewTool("read_log",
		mcp.WithDescription(
			"Read a log file written by this server, optionally keeping only lines "+
				"with a keyword and only the last N lines. Use it to follow a watch.",
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("The log file name as returned by list_logs or a watch tool (name only, no directory)."),
		),
		mcp.WithString("keyword",
			mcp.Description("Only return lines containing this text, e.g. 'COMPONENT_UPDATE'."),
		),
		mcp.WithNumber("tail_lines",
			mcp.Description("Only return the last N matching lines."),
		),
	)
}

// Handle processes the read_log tool call.
func (t *ReadLogTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("filename", ""))
	if err := validateLogName(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keyword := req.GetString("keyword", "")
	tail, err := intArg(req, "tail_lines", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if tail < 0 {
		return mcp.NewToolResultError("'tail_lines' must not be negative"), nil
	}

	path := filepath.Join(t.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return mcp.NewToolResultError(fmt.Sprintf("log file %s not found. Use list_logs to see available logs.", name)), nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var lines []string
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		total++
		line := scanner.Text()
		if keyword != "" && !strings.Contains(line, keyword) {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	limit := tail
	if limit == 0 {
		limit = maxReadLines
	}
	truncated := false
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
		truncated = tail == 0
	}

	msg := fmt.Sprintf("Read %d of %d line(s) from %s", len(lines), total, name)
	if truncated {
		msg += fmt.Sprintf(" (only the last %d are shown; use keyword or tail_lines to narrow)", maxReadLines)
	}
	return jsonResult(map[string]any{
		"status":     statusSuccess,
		"message":    msg,
		"filename":   name,
		"path":       path,
		"size":       humanize.Bytes(uint64(info.Size())),
		"line_count": len(lines),
		"content":    strings.Join(lines, "\n"),
	})
}

// --- cleanup_logs ---

// CleanupLogsTool handles the cleanup_logs MCP tool.
type CleanupLogsTool struct {
	dir     string
	watcher Watcher
}

// NewCleanupLogsTool creates a CleanupLogsTool. Logs of the watcher's active
// watches are never deleted; w may be nil.
func NewCleanupLogsTool(dir string, w Watcher) *CleanupLogsTool {
	return &CleanupLogsTool{dir: dir, watcher: w}
}

// Definition returns the MCP tool definition for registration.
func (t *CleanupLogsTool) Definition() mcp.Tool {
	return mcp.NewTool("cleanup_logs",
		mcp.WithDescription(
			"Delete log files written by this server. Logs of active watches are kept.",
		),
		mcp.WithString("app_name",
			mcp.Description("Only delete logs whose name continues with this after the prefix, e.g. 'watch'."),
		),
		mcp.WithNumber("older_than_seconds",
			mcp.Description("Only delete logs last modified more than this many seconds ago. 0 deletes regardless of age."),
		),
	)
}

// Handle processes the cleanup_logs tool call.
func (t *CleanupLogsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app := strings.TrimSpace(req.GetString("app_name", ""))
	olderThan, err := intArg(req, "older_than_seconds", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if olderThan < 0 {
		return mcp.NewToolResultError("'older_than_seconds' must not be negative"), nil
	}

	logs, err := scanLogs(t.dir, app, activePaths(t.watcher))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cutoff := timeNow().Add(-time.Duration(olderThan) * time.Second)
	deleted := []string{}
	var freed int64
	skipped := 0
	for _, l := range logs {
		if l.Active {
			skipped++
			continue
		}
		if olderThan > 0 {
			mod, err := time.Parse(time.RFC3339, l.Modified)
			if err == nil && mod.After(cutoff) {
				continue
			}
		}
		if err := os.Remove(l.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return mcp.NewToolResultError(fmt.Sprintf("deleting %s: %v", l.Filename, err)), nil
		}
		deleted = append(deleted, l.Filename)
		freed += l.SizeBytes
	}

	return jsonResult(map[string]any{
		"status":         statusSuccess,
		"message":        fmt.Sprintf("Deleted %d log file(s), freed %s", len(deleted), humanize.Bytes(uint64(freed))),
		"deleted_count":  len(deleted),
		"deleted":        deleted,
		"skipped_active": skipped,
	})
}
