// Package mcp lets an external MCP relay drive the agent's tools over a
// websocket. The relay sends execute, list_tools, list_skills and ping
// requests; every tool call goes through the dispatcher and the shared
// rate limiter.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telebiz/agentcore/internal/dispatch"
	"github.com/telebiz/agentcore/internal/domain"
	"github.com/telebiz/agentcore/internal/logging"
	"github.com/telebiz/agentcore/internal/ratelimit"
	"github.com/telebiz/agentcore/internal/tool"
)

// Request types.
const (
	TypeExecute    = "execute"
	TypeListTools  = "list_tools"
	TypeListSkills = "list_skills"
	TypePing       = "ping"
)

// Response types.
const (
	TypeResult   = "result"
	TypeTools    = "tools"
	TypeSkills   = "skills"
	TypePong     = "pong"
	TypeError    = "error"
	TypeRegister = "register"
)

const (
	readLimit  = 10 * 1024 * 1024 // tool results can be large
	readWait   = 10 * time.Minute
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Request is one frame from the relay.
type Request struct {
	ID   string         `json:"id,omitempty"`
	Type string         `json:"type"`
	Tool string         `json:"tool,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// Response answers a Request. ID echoes the request's.
type Response struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Tools   []Tool `json:"tools,omitempty"`
}

// InputSchema is the object schema of a tool's arguments.
type InputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// Tool is a tool definition in MCP form.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// Skill is one extra-tool bundle with its tools.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tools       []Tool `json:"tools"`
}

// ToolFromDefinition converts a tool definition to MCP form.
func ToolFromDefinition(def domain.ToolDefinition) Tool {
	props, _ := def.Parameters["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	required := def.Required()
	if required == nil {
		required = []string{}
	}
	return Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: InputSchema{Type: "object", Properties: props, Required: required},
	}
}

// Bridge serves the relay protocol.
type Bridge struct {
	tools    *dispatch.Dispatcher
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
	recovery *logging.RecoveryHandler
	log      *logging.Logger
}

// New creates a bridge over tools. A nil limiter means the process-wide one.
func New(tools *dispatch.Dispatcher, limiter *ratelimit.Limiter) *Bridge {
	if limiter == nil {
		limiter = ratelimit.Global()
	}
	return &Bridge{
		tools:   tools,
		limiter: limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isLocalOrigin(origin)
			},
		},
		recovery: logging.NewRecoveryHandler("mcp"),
		log:      logging.New("mcp"),
	}
}

// isLocalOrigin accepts browser origins on the loopback interface only.
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Tools returns the core tools followed by every bundle tool, deduplicated
// by name. Tools disabled by policy are left out.
func (b *Bridge) Tools() []Tool {
	seen := map[string]bool{}
	var out []Tool
	add := func(defs []domain.ToolDefinition) {
		for _, def := range defs {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			out = append(out, ToolFromDefinition(def))
		}
	}
	add(b.tools.CoreDefinitions(domain.ModeAgent))
	if extras := b.tools.Extras(); extras != nil {
		for _, bundle := range extras.ListBundles() {
			add(bundle.Tools)
		}
	}
	return out
}

// Skills returns every bundle with its tools.
func (b *Bridge) Skills() []Skill {
	extras := b.tools.Extras()
	if extras == nil {
		return []Skill{}
	}
	bundles := extras.ListBundles()
	out := make([]Skill, len(bundles))
	for i, bundle := range bundles {
		tools := make([]Tool, len(bundle.Tools))
		for j, def := range bundle.Tools {
			tools[j] = ToolFromDefinition(def)
		}
		out[i] = Skill{Name: string(bundle.Name), Description: bundle.Description, Tools: tools}
	}
	return out
}

// Handle answers one request.
func (b *Bridge) Handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case TypePing:
		return Response{ID: req.ID, Type: TypePong}
	case TypeListTools:
		return Response{ID: req.ID, Type: TypeTools, Tools: b.Tools()}
	case TypeListSkills:
		return Response{ID: req.ID, Type: TypeSkills, Data: b.Skills()}
	case TypeExecute:
		if req.Tool == "" {
			return resultResponse(req.ID, domain.Fail(domain.ErrorKindValidation, "Missing tool name"))
		}
		return resultResponse(req.ID, b.execute(ctx, req.Tool, tool.Args(req.Args)))
	default:
		return Response{ID: req.ID, Type: TypeError, Error: fmt.Sprintf("Unknown request type: %s", req.Type)}
	}
}

// execute runs one tool call. Every relay request is its own execution, so
// the per-execution budget starts fresh while the shared window still
// applies.
func (b *Bridge) execute(ctx context.Context, name string, args tool.Args) domain.ToolResult {
	if args == nil {
		args = tool.Args{}
	}
	start := time.Now()
	scope := b.limiter.BeginExecution()
	heavy := ratelimit.IsHeavy(name) || b.tools.IsHeavy(name)
	if err := scope.Wait(ctx, name, heavy); err != nil {
		var rejected *ratelimit.RejectedError
		if errors.As(err, &rejected) {
			b.log.Warn("rate_limited", map[string]any{"tool": name, "reason": string(rejected.Reason)}, err)
			return domain.Fail(domain.ErrorKindRateLimit, err.Error())
		}
		// the relay went away while the call waited for its slot
		return domain.Fail(domain.ErrorKindRateLimit, err.Error())
	}
	res := b.tools.Execute(ctx, name, args)
	b.log.ToolCall(name, args, res.Success, res.Error, time.Since(start))
	return res
}

func resultResponse(id string, res domain.ToolResult) Response {
	ok := res.Success
	return Response{ID: id, Type: TypeResult, Success: &ok, Data: res.Data, Error: res.Error}
}

// conn is one relay connection. Writes go through send so that only
// writePump touches the socket.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

func (c *conn) push(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(Response{ID: resp.ID, Type: TypeError, Error: err.Error()})
	}
	c.send <- data
}

// drain closes a failed socket, which ends readPump, and discards what is
// still queued so pending requests never block on send.
func (c *conn) drain() {
	c.ws.Close()
	for range c.send {
	}
}

// ServeHTTP upgrades the request and serves the relay until it disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade_failed", map[string]any{"remote": r.RemoteAddr}, err)
		return
	}
	c := &conn{ws: ws, send: make(chan []byte, 256)}
	b.log.Info("relay_connected", map[string]any{"remote": r.RemoteAddr})

	done := make(chan struct{})
	go func() {
		b.writePump(c)
		close(done)
	}()

	c.push(Response{Type: TypeRegister, Role: "executor"})
	b.readPump(context.WithoutCancel(r.Context()), c)
	<-done
	b.log.Info("relay_disconnected", map[string]any{"remote": r.RemoteAddr})
}

// readPump decodes frames until the socket fails, running each request in
// its own goroutine. It waits for in-flight requests before closing send.
func (b *Bridge) readPump(parent context.Context, c *conn) {
	ctx, cancel := context.WithCancel(parent)
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		close(c.send)
	}()

	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("relay_read_failed", nil, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readWait))

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			c.push(Response{Type: TypeError, Error: "Invalid JSON message"})
			continue
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			var resp Response
			err := b.recovery.WrapError(func() error {
				resp = b.Handle(ctx, req)
				return nil
			})
			if err != nil {
				resp = Response{ID: req.ID, Type: TypeError, Error: err.Error()}
			}
			c.push(resp)
		}()
	}
}

func (b *Bridge) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.drain()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.drain()
				return
			}
		}
	}
}
