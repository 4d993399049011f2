package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

// --- Input types ---

type emptyInput struct{}

type recentInput struct {
	Limit int `json:"limit" jsonschema:"max number of scans to return (default 20)"`
}

type searchInput struct {
	Query string `json:"query" jsonschema:"substring of the card UID or user name"`
	Limit int    `json:"limit" jsonschema:"max number of scans to return (default 20)"`
}

type byDateInput struct {
	Date  string `json:"date" jsonschema:"day in YYYY-MM-DD format"`
	Limit int    `json:"limit" jsonschema:"max number of scans to return (default 20)"`
}

type backupInput struct {
	Name string `json:"name" jsonschema:"backup file name ending in .db (default: timestamped)"`
}

// registerTools adds all cardlog MCP tools to the server.
func (s *MCPServer) registerTools() {
	// Read-only tools

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_recent",
		Description: "Most recent card scans, newest first",
	}, s.handleRecent)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_stats",
		Description: "Scan statistics: total scans, unique users, scans today",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_search",
		Description: "Search scans by card UID or user name",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_by_date",
		Description: "Scans recorded on one day",
	}, s.handleByDate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_db_info",
		Description: "Database size, row counts, date range and backups",
	}, s.handleDBInfo)

	// Write tools

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cardlog_backup",
		Description: "Create a consistent backup of the scan database",
	}, s.handleBackup)
}

// --- Handlers ---

func (s *MCPServer) handleRecent(_ context.Context, _ *mcp.CallToolRequest, input recentInput) (*mcp.CallToolResult, any, error) {
	logs, err := db.RecentScans(clampLimit(input.Limit))
	if err != nil {
		return errResult(fmt.Sprintf("failed to get scans: %v", err)), nil, nil
	}
	return textResult(scanTable("Recent Scans", logs)), nil, nil
}

func (s *MCPServer) handleStats(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	stats, err := db.GetStats(s.clock.Now())
	if err != nil {
		return errResult(fmt.Sprintf("failed to get stats: %v", err)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Scan Statistics\n\n")
	fmt.Fprintf(&b, "- Total scans: %d\n", stats.TotalScans)
	fmt.Fprintf(&b, "- Unique users: %d\n", stats.UniqueUsers)
	fmt.Fprintf(&b, "- Scans today (%s): %d\n", s.clock.Now().Format("2006-01-02"), stats.TodayScans)
	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleSearch(_ context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	q := strings.TrimSpace(input.Query)
	if q == "" {
		return errResult("query is required"), nil, nil
	}
	logs, err := db.SearchScans(q, clampLimit(input.Limit))
	if err != nil {
		return errResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	return textResult(scanTable(fmt.Sprintf("Scans matching %q", q), logs)), nil, nil
}

func (s *MCPServer) handleByDate(_ context.Context, _ *mcp.CallToolRequest, input byDateInput) (*mcp.CallToolResult, any, error) {
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return errResult("date must be YYYY-MM-DD"), nil, nil
	}
	logs, err := db.ScansByDate(input.Date, clampLimit(input.Limit))
	if err != nil {
		return errResult(fmt.Sprintf("failed to get scans: %v", err)), nil, nil
	}
	return textResult(scanTable("Scans on "+input.Date, logs)), nil, nil
}

func (s *MCPServer) handleDBInfo(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	info, err := s.backups.Info()
	if err != nil {
		return errResult(fmt.Sprintf("failed to read database info: %v", err)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Database\n\n")
	fmt.Fprintf(&b, "**Path:** `%s`\n", info.DatabasePath)
	fmt.Fprintf(&b, "**Size:** %.2f MB\n", info.SizeMB)
	fmt.Fprintf(&b, "**Tables:** %s\n\n", strings.Join(info.Tables, ", "))
	fmt.Fprintf(&b, "- Total logs: %d\n", info.TotalLogs)
	if info.OldestLog != "" {
		fmt.Fprintf(&b, "- Oldest: %s\n", info.OldestLog)
		fmt.Fprintf(&b, "- Newest: %s\n", info.NewestLog)
	}

	fmt.Fprintf(&b, "\n## Backups (%d)\n", info.BackupCount)
	for _, f := range info.BackupFiles {
		fmt.Fprintf(&b, "- %s (%d bytes, %s)\n", f.Name, f.Size, f.Modified.Format("2006-01-02 15:04:05"))
	}
	return textResult(b.String()), nil, nil
}

func (s *MCPServer) handleBackup(_ context.Context, _ *mcp.CallToolRequest, input backupInput) (*mcp.CallToolResult, any, error) {
	path, err := s.backups.Create(strings.TrimSpace(input.Name))
	if err != nil {
		return errResult(fmt.Sprintf("backup failed: %v", err)), nil, nil
	}
	return textResult(fmt.Sprintf("Backup created.\n\n- **Path:** `%s`", path)), nil, nil
}

// --- Helpers ---

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func scanTable(title string, logs []db.CardLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(logs) == 0 {
		b.WriteString("No scans found.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "| Time | UID | User |\n|------|-----|------|\n")
	for _, l := range logs {
		fmt.Fprintf(&b, "| %s | `%s` | %s |\n", l.Timestamp.Format(model.TimeLayout), l.UID, l.User)
	}
	fmt.Fprintf(&b, "\n%d scans\n", len(logs))
	return b.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
