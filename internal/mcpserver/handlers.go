package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// defaultListLimit applies when the caller does not pass a limit.
const defaultListLimit = 20

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PagewatchClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PagewatchClient) *Handlers {
	return &Handlers{client: client}
}

// HandleClassifyEvent classifies a single event.
func (h *Handlers) HandleClassifyEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventType := req.GetString("type", "")
	if eventType == "" {
		return mcp.NewToolResultError("type is required"), nil
	}
	pageURL := req.GetString("url", "")
	if pageURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	var meta map[string]any
	if raw := req.GetArguments()["meta"]; raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("meta must be an object"), nil
		}
		meta = m
	}

	raw, err := h.client.ClassifyEvent(ctx, eventType, pageURL, meta)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to classify event: %v", err)), nil
	}

	var resp struct {
		Reasons []string `json:"reasons"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reasons: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reasons for %s event on %s:\n", eventType, pageURL)
	for _, r := range resp.Reasons {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleAnalyzeBatch summarizes a batch and reports the phishing verdict.
func (h *Handlers) HandleAnalyzeBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL := req.GetString("url", "")
	if pageURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	events, ok := req.GetArguments()["events"].([]any)
	if !ok {
		return mcp.NewToolResultError("events must be an array"), nil
	}

	raw, err := h.client.AnalyzeBatch(ctx, pageURL, events)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Batch analysis failed: %v", err)), nil
	}

	text, err := formatBatch(pageURL, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse batch result: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCheckURL returns the phishing verdict for a URL.
func (h *Handlers) HandleCheckURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL := req.GetString("url", "")
	if pageURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	raw, err := h.client.CheckURL(ctx, pageURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("URL check failed: %v", err)), nil
	}

	var v verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse verdict: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\n", pageURL)
	writeVerdict(&sb, v)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleRecentEvents lists stored events.
func (h *Handlers) HandleRecentEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.RecentEvents(ctx, req.GetInt("limit", defaultListLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
	}

	var resp struct {
		Events []storedEvent `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse events: %v", err)), nil
	}
	return mcp.NewToolResultText(formatEvents(resp.Events)), nil
}

// HandleRecentDomains lists recently seen domains.
func (h *Handlers) HandleRecentDomains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.RecentDomains(ctx, req.GetInt("limit", defaultListLimit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list domains: %v", err)), nil
	}

	var resp struct {
		Domains []struct {
			Domain string `json:"domain"`
			TS     string `json:"ts"`
		} `json:"domains"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse domains: %v", err)), nil
	}
	if len(resp.Domains) == 0 {
		return mcp.NewToolResultText("No domains recorded yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d domain(s):\n\n", len(resp.Domains))
	for i, d := range resp.Domains {
		fmt.Fprintf(&sb, "%d. %s (last seen %s)\n", i+1, d.Domain, d.TS)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleActivitySummary summarizes the stored event log.
func (h *Handlers) HandleActivitySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
	}

	var resp struct {
		Summary struct {
			TotalEvents int            `json:"total_events"`
			EventTypes  map[string]int `json:"event_types"`
			Reasons     map[string]int `json:"reasons"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}

	s := resp.Summary
	if s.TotalEvents == 0 {
		return mcp.NewToolResultText("No events recorded yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total events: %d\n", s.TotalEvents)
	writeCounts(&sb, "By type", s.EventTypes)
	writeCounts(&sb, "By reason", s.Reasons)
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

type verdict struct {
	Status          string   `json:"status"`
	DetectionSource string   `json:"detection_source"`
	Reports         []string `json:"reports"`
}

type storedEvent struct {
	TS      string   `json:"ts"`
	Type    string   `json:"type"`
	URL     string   `json:"url"`
	Reasons []string `json:"reasons"`
}

// indicators maps batch summary counters to readable labels, in display order.
var indicators = []struct{ key, label string }{
	{"form_action_domain_mismatch_events", "Form posts to another domain"},
	{"risky_download_events", "Risky downloads"},
	{"clipboard_write_events", "Clipboard writes"},
	{"crypto_address_events", "Crypto addresses in clipboard"},
	{"redirect_chain_long_events", "Long redirect chains"},
	{"payment_fields_events", "Forms with payment fields"},
	{"file_upload_events", "Forms with file uploads"},
}

func formatBatch(pageURL string, raw json.RawMessage) (string, error) {
	var resp struct {
		Summary  map[string]json.RawMessage `json:"summary"`
		Phishing verdict                    `json:"phishing"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Summary == nil {
		return "", fmt.Errorf("missing summary in response")
	}

	var total int
	var types map[string]int
	var sequence []string
	_ = json.Unmarshal(resp.Summary["total_events"], &total)
	_ = json.Unmarshal(resp.Summary["event_types"], &types)
	_ = json.Unmarshal(resp.Summary["event_sequence"], &sequence)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Page: %s\n", pageURL)
	writeVerdict(&sb, resp.Phishing)
	fmt.Fprintf(&sb, "\nEvents: %d\n", total)
	writeCounts(&sb, "By type", types)

	var flagged []string
	for _, ind := range indicators {
		var n int
		if err := json.Unmarshal(resp.Summary[ind.key], &n); err == nil && n > 0 {
			flagged = append(flagged, fmt.Sprintf("  %s: %d", ind.label, n))
		}
	}
	if len(flagged) > 0 {
		sb.WriteString("Risk indicators:\n")
		sb.WriteString(strings.Join(flagged, "\n"))
		sb.WriteString("\n")
	} else {
		sb.WriteString("Risk indicators: none\n")
	}

	if len(sequence) > 0 {
		fmt.Fprintf(&sb, "Sequence: %s\n", strings.Join(sequence, " -> "))
	}
	return sb.String(), nil
}

func writeVerdict(sb *strings.Builder, v verdict) {
	fmt.Fprintf(sb, "Phishing verdict: %s", v.Status)
	if v.DetectionSource != "" {
		fmt.Fprintf(sb, " (source: %s)", v.DetectionSource)
	}
	sb.WriteString("\n")
	for _, r := range v.Reports {
		fmt.Fprintf(sb, "  Report: %s\n", r)
	}
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(sb, "%s: %s\n", title, strings.Join(parts, ", "))
}

func formatEvents(events []storedEvent) string {
	if len(events) == 0 {
		return "No events recorded yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d event(s):\n\n", len(events))
	for i, e := range events {
		fmt.Fprintf(&sb, "%d. [%s] %s on %s\n", i+1, e.TS, e.Type, e.URL)
		if len(e.Reasons) > 0 {
			fmt.Fprintf(&sb, "   Reasons: %s\n", strings.Join(e.Reasons, ", "))
		}
	}
	return sb.String()
}
