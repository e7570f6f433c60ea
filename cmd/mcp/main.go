// pagewatch MCP server - exposes the pagewatch API as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/pagewatch/internal/mcpserver"
)

// Version is set by ldflags
var Version = "dev"

func main() {
	cfg := mcpserver.Config{
		APIURL: envOrDefault("PAGEWATCH_API_URL", "http://localhost:8000"),
	}

	if raw := os.Getenv("PAGEWATCH_API_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "PAGEWATCH_API_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}

	s := mcpserver.NewMCPServer(cfg, Version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
