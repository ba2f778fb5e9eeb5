// Command mcp serves the fleet API as MCP tools over stdio.
package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"fleetnav/internal/buildinfo"
	"fleetnav/internal/mcptools"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	base := os.Getenv("FLEET_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := mcptools.NewClient(base, os.Getenv("FLEET_API_TOKEN"))
	s := mcptools.New(c, buildinfo.Version)

	log.Info("mcp server starting", "api", base)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}
