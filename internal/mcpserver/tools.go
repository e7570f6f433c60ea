package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the pagewatch MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolClassifyEvent = mcp.NewTool("classify_event",
	mcp.WithDescription(
		"Classify one browser event observed on a web page into risk reason tags. "+
			"Returns tags such as 'form_action_domain_mismatch', 'risky_file_ext' or 'crypto_address_present'."),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Event type"),
		mcp.Enum("pii_input", "payment", "download", "login", "password_input", "clipboard", "redirect", "form_submit")),
	mcp.WithString("url",
		mcp.Required(),
		mcp.Description("Absolute http(s) URL of the page where the event happened")),
	mcp.WithObject("meta",
		mcp.Description("Type-specific details. For clipboard: {\"action\": \"write\", \"contains_crypto_address\": true}. "+
			"Call with no meta to get only the type tag.")),
)

var ToolAnalyzeBatch = mcp.NewTool("analyze_batch",
	mcp.WithDescription(
		"Summarize a sequence of timestamped events from one page and fetch the page's phishing verdict. "+
			"Returns per-type counts, risk indicator counts, the event sequence and the verdict."),
	mcp.WithString("url",
		mcp.Required(),
		mcp.Description("Absolute http(s) URL of the page")),
	mcp.WithArray("events",
		mcp.Required(),
		mcp.Description("Events as objects with ts (ISO 8601), type, url and optional meta"),
		mcp.Items(map[string]any{"type": "object"})),
)

var ToolCheckURL = mcp.NewTool("check_url",
	mcp.WithDescription(
		"Ask the phishing analyzer about a page URL. "+
			"Returns SAFE, CAUTION, DANGER or UNKNOWN with the detection source and any reports."),
	mcp.WithString("url",
		mcp.Required(),
		mcp.Description("Absolute http(s) URL to check")),
)

var ToolRecentEvents = mcp.NewTool("recent_events",
	mcp.WithDescription(
		"List the most recently stored events, newest first. "+
			"Includes synthesized 'phishing' events recorded when a visited page was rated DANGER or CAUTION."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 20)")),
)

var ToolRecentDomains = mcp.NewTool("recent_domains",
	mcp.WithDescription("List the most recently visited domains, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of domains to return (default 20)")),
)

var ToolActivitySummary = mcp.NewTool("activity_summary",
	mcp.WithDescription(
		"Summarize all stored events: total count, counts per event type and counts per reason tag."),
)
