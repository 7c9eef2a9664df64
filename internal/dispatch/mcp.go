package dispatch

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Register adds every catalogued operation to s. Calls made over MCP go
// through Dispatch, so they get the same validation and normalization as
// every other caller.
func (d *Dispatcher) Register(s *server.MCPServer) {
	for _, name := range d.toolOrder {
		s.AddTool(d.tools[name].Definition(), d.toolHandler(name))
	}
	for _, e := range d.resources {
		s.AddResourceTemplate(e.res.Definition(), d.resourceHandler())
	}
	for _, name := range d.promptOrd {
		s.AddPrompt(d.prompts[name].Definition(), d.promptHandler(name))
	}
}

func (d *Dispatcher) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := d.Dispatch(ctx, Request{Category: CategoryTool, Name: name, Arguments: req.GetArguments()})
		if resp.Kind == KindError {
			return mcp.NewToolResultError(resp.Error), nil
		}
		return mcp.NewToolResultText(resp.Text), nil
	}
}

func (d *Dispatcher) resourceHandler() server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		resp := d.Dispatch(ctx, Request{Category: CategoryResource, Name: req.Params.URI})
		if resp.Kind == KindError {
			return nil, resp.Err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(resp.JSON),
			},
		}, nil
	}
}

func (d *Dispatcher) promptHandler(name string) server.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]any, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		resp := d.Dispatch(ctx, Request{Category: CategoryPrompt, Name: name, Arguments: args})
		if resp.Kind == KindError {
			return nil, resp.Err
		}
		result := &mcp.GetPromptResult{Description: resp.Description}
		for _, m := range resp.Messages {
			result.Messages = append(result.Messages, mcp.PromptMessage{
				Role:    mcp.Role(m.Role),
				Content: mcp.NewTextContent(m.Text),
			})
		}
		return result, nil
	}
}
