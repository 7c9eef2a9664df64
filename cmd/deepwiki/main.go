// DeepWiki: code repository question answering over a web API and MCP.
//
// Usage:
//
//	deepwiki start [--mode web|mcp|both] [--port 8001] [--split]
//	deepwiki web   [--port 8001]
//	deepwiki mcp   [--transport stdio|http|sse] [--port 8002]
//	deepwiki status
//	deepwiki config init
//	deepwiki version [--check]
//
// Example MCP client configuration (stdio):
//
//	{
//	  "mcpServers": {
//	    "deepwiki": {
//	      "command": "deepwiki",
//	      "args": ["mcp"]
//	    }
//	  }
//	}
package main

import (
	"os"

	"github.com/kratos06/deepwiki-open/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
