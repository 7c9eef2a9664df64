// Package dispatch routes named operations (tools, resource templates and
// prompt templates) to their handlers and normalizes every outcome into a
// Response.
//
// The catalogue is fixed at wiring time. Handler failures never escape as
// Go errors or panics: tools answer with text, resources with a JSON
// document carrying an "error" field. Only malformed requests (unknown
// names, invalid arguments) produce an error Response.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Category of an operation.
type Category string

const (
	CategoryTool     Category = "tool"
	CategoryResource Category = "resource"
	CategoryPrompt   Category = "prompt"
)

var (
	// ErrInvalidArgument marks a request whose arguments fail validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownOperation marks a request naming no catalogued operation.
	ErrUnknownOperation = errors.New("unknown operation")
)

// Tool is a catalogued tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Resource is a catalogued resource template.
type Resource interface {
	Definition() mcp.ResourceTemplate
	URITemplate() string
	Read(ctx context.Context, vars map[string]string) []byte
}

// Prompt is a catalogued prompt template.
type Prompt interface {
	Definition() mcp.Prompt
	Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// Request names one operation. For resources, Name is the URI.
type Request struct {
	Category  Category       `json:"category"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Response kinds.
const (
	KindText     = "text"
	KindJSON     = "json"
	KindMessages = "messages"
	KindError    = "error"
)

// Message is one prompt turn.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Response is the normalized outcome of a Request.
type Response struct {
	Kind        string          `json:"kind"`
	Text        string          `json:"text,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	Description string          `json:"description,omitempty"`
	Messages    []Message       `json:"messages,omitempty"`
	Error       string          `json:"error,omitempty"`
	// Err wraps ErrInvalidArgument or ErrUnknownOperation for KindError.
	Err error `json:"-"`
}

func errorResponse(err error) Response {
	return Response{Kind: KindError, Error: err.Error(), Err: err}
}

type resourceEntry struct {
	res  Resource
	tmpl *uriTemplate
}

// Dispatcher holds the operation catalogue.
type Dispatcher struct {
	logger    *slog.Logger
	tools     map[string]Tool
	toolOrder []string
	resources []resourceEntry
	prompts   map[string]Prompt
	promptOrd []string
}

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:  logger,
		tools:   map[string]Tool{},
		prompts: map[string]Prompt{},
	}
}

// AddTool catalogues t. It panics if the name is already taken.
func (d *Dispatcher) AddTool(t Tool) {
	name := t.Definition().Name
	if _, dup := d.tools[name]; dup {
		panic(fmt.Sprintf("dispatch: duplicate tool %q", name))
	}
	d.tools[name] = t
	d.toolOrder = append(d.toolOrder, name)
}

// AddResource catalogues r. It panics on a duplicate or malformed template.
func (d *Dispatcher) AddResource(r Resource) {
	raw := r.URITemplate()
	for _, e := range d.resources {
		if e.tmpl.raw == raw {
			panic(fmt.Sprintf("dispatch: duplicate resource template %q", raw))
		}
	}
	tmpl, err := parseURITemplate(raw)
	if err != nil {
		panic("dispatch: " + err.Error())
	}
	d.resources = append(d.resources, resourceEntry{res: r, tmpl: tmpl})
}

// AddPrompt catalogues p. It panics if the name is already taken.
func (d *Dispatcher) AddPrompt(p Prompt) {
	name := p.Definition().Name
	if _, dup := d.prompts[name]; dup {
		panic(fmt.Sprintf("dispatch: duplicate prompt %q", name))
	}
	d.prompts[name] = p
	d.promptOrd = append(d.promptOrd, name)
}

// Entry describes one catalogued operation. For resources Name is the URI
// template.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalogue lists every operation in registration order.
type Catalogue struct {
	Tools     []Entry `json:"tools"`
	Resources []Entry `json:"resources"`
	Prompts   []Entry `json:"prompts"`
}

// Names returns the tool names, resource templates and prompt names.
func (c Catalogue) Names() (tools, resources, prompts []string) {
	for _, e := range c.Tools {
		tools = append(tools, e.Name)
	}
	for _, e := range c.Resources {
		resources = append(resources, e.Name)
	}
	for _, e := range c.Prompts {
		prompts = append(prompts, e.Name)
	}
	return tools, resources, prompts
}

// Catalogue describes the registered operations.
func (d *Dispatcher) Catalogue() Catalogue {
	c := Catalogue{Tools: []Entry{}, Resources: []Entry{}, Prompts: []Entry{}}
	for _, name := range d.toolOrder {
		c.Tools = append(c.Tools, Entry{Name: name, Description: d.tools[name].Definition().Description})
	}
	for _, e := range d.resources {
		c.Resources = append(c.Resources, Entry{Name: e.tmpl.raw, Description: e.res.Definition().Description})
	}
	for _, name := range d.promptOrd {
		c.Prompts = append(c.Prompts, Entry{Name: name, Description: d.prompts[name].Definition().Description})
	}
	return c
}

// Dispatch runs req and normalizes the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("operation panicked", "category", req.Category, "name", req.Name, "panic", r)
			resp = panicResponse(req, r)
		}
	}()

	switch req.Category {
	case CategoryTool:
		return d.callTool(ctx, req)
	case CategoryResource:
		return d.readResource(ctx, req.Name)
	case CategoryPrompt:
		return d.getPrompt(ctx, req)
	default:
		return errorResponse(fmt.Errorf("%w: category %q", ErrUnknownOperation, req.Category))
	}
}

func panicResponse(req Request, r any) Response {
	msg := fmt.Sprintf("internal error in %s: %v", req.Name, r)
	switch req.Category {
	case CategoryTool:
		return Response{Kind: KindText, Text: "Error: " + msg}
	case CategoryResource:
		data, _ := json.Marshal(map[string]string{"error": msg})
		return Response{Kind: KindJSON, JSON: data}
	default:
		return errorResponse(errors.New(msg))
	}
}

func (d *Dispatcher) callTool(ctx context.Context, req Request) Response {
	tool, ok := d.tools[req.Name]
	if !ok {
		return errorResponse(fmt.Errorf("%w: tool %q", ErrUnknownOperation, req.Name))
	}
	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := validate(tool.Definition().InputSchema, args); err != nil {
		return errorResponse(err)
	}

	call := mcp.CallToolRequest{}
	call.Params.Name = req.Name
	call.Params.Arguments = args
	result, err := tool.Handle(ctx, call)
	if err != nil {
		d.logger.Error("tool failed", "tool", req.Name, "error", err)
		return Response{Kind: KindText, Text: "Error: " + err.Error()}
	}
	text := resultText(result)
	if result != nil && result.IsError {
		return errorResponse(fmt.Errorf("%w: %s", ErrInvalidArgument, text))
	}
	return Response{Kind: KindText, Text: text}
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (d *Dispatcher) readResource(ctx context.Context, uri string) Response {
	for _, e := range d.resources {
		vars, ok := e.tmpl.match(uri)
		if !ok {
			continue
		}
		return Response{Kind: KindJSON, JSON: e.res.Read(ctx, vars)}
	}
	return errorResponse(fmt.Errorf("%w: no resource template matches %q", ErrUnknownOperation, uri))
}

func (d *Dispatcher) getPrompt(ctx context.Context, req Request) Response {
	p, ok := d.prompts[req.Name]
	if !ok {
		return errorResponse(fmt.Errorf("%w: prompt %q", ErrUnknownOperation, req.Name))
	}
	get := mcp.GetPromptRequest{}
	get.Params.Name = req.Name
	get.Params.Arguments = stringArgs(req.Arguments)
	result, err := p.Handle(ctx, get)
	if err != nil {
		return errorResponse(err)
	}
	resp := Response{Kind: KindMessages, Description: result.Description, Messages: []Message{}}
	for _, m := range result.Messages {
		text := ""
		if tc, ok := m.Content.(mcp.TextContent); ok {
			text = tc.Text
		}
		resp.Messages = append(resp.Messages, Message{Role: string(m.Role), Text: text})
	}
	return resp
}

func stringArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch s := v.(type) {
		case nil:
		case string:
			out[k] = s
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}
