package mcptools

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New builds an MCP server with every fleet tool registered.
func New(c *Client, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"fleetnav",
		version,
		server.WithToolCapabilities(true),
	)
	RegisterAll(s, c)
	return s
}

func RegisterAll(s *server.MCPServer, c *Client) {
	registerTaskTools(s, c)
	registerGraphTools(s, c)
	registerFleetTools(s, c)
}

func registerTaskTools(s *server.MCPServer, c *Client) {
	enqueue := mcp.NewTool("enqueue_task",
		mcp.WithDescription("Queue a transport task from a source node to a destination node."),
		mcp.WithNumber("source",
			mcp.Description("Pickup node id"),
			mcp.Required(),
		),
		mcp.WithNumber("destination",
			mcp.Description("Drop-off node id"),
			mcp.Required(),
		),
	)
	queueView := mcp.NewTool("get_queue",
		mcp.WithDescription("List the tasks currently waiting in the queue, in dispatch order."),
	)
	getTask := mcp.NewTool("get_task",
		mcp.WithDescription("Get one task and its lifecycle status."),
		mcp.WithString("task_id",
			mcp.Description("The task ID"),
			mcp.Required(),
		),
	)

	s.AddTool(enqueue, makeEnqueueHandler(c))
	s.AddTool(queueView, makeGetHandler(c, "/v1/tasks", nil))
	s.AddTool(getTask, makeGetTaskHandler(c))
}

func registerGraphTools(s *server.MCPServer, c *Client) {
	paths := mcp.NewTool("shortest_paths",
		mcp.WithDescription("Find up to k loopless shortest paths between two nodes, cheapest first."),
		mcp.WithNumber("from",
			mcp.Description("Start node id"),
			mcp.Required(),
		),
		mcp.WithNumber("to",
			mcp.Description("End node id"),
			mcp.Required(),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of paths, default 3"),
		),
	)
	reservations := mcp.NewTool("get_reservations",
		mcp.WithDescription("Show which vehicle holds each reserved road segment."),
	)

	s.AddTool(paths, makePathsHandler(c))
	s.AddTool(reservations, makeGetHandler(c, "/v1/reservations", nil))
}

func registerFleetTools(s *server.MCPServer, c *Client) {
	vehicles := mcp.NewTool("list_vehicles",
		mcp.WithDescription("List vehicles with their position, state and current task."),
	)
	dispatches := mcp.NewTool("list_dispatches",
		mcp.WithDescription("List recent dispatches, oldest first."),
		mcp.WithNumber("limit",
			mcp.Description("Page size"),
		),
		mcp.WithString("cursor",
			mcp.Description("Cursor returned by a previous call"),
		),
	)
	runs := mcp.NewTool("optimizer_runs",
		mcp.WithDescription("Show recent queue optimizer runs and the cost change each achieved."),
	)

	s.AddTool(vehicles, makeGetHandler(c, "/v1/vehicles", nil))
	s.AddTool(dispatches, makeDispatchesHandler(c))
	s.AddTool(runs, makeGetHandler(c, "/v1/optimizer/runs", nil))
}

func makeGetHandler(c *Client, path string, q url.Values) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out), nil
	}
}

func makeEnqueueHandler(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		src := request.GetFloat("source", -1)
		dst := request.GetFloat("destination", -1)
		if src < 0 || dst < 0 {
			return errorResult(errors.New("source and destination are required")), nil
		}
		body := map[string]any{
			"tasks": []map[string]int{{"source": int(src), "destination": int(dst)}},
		}
		out, err := c.do(ctx, http.MethodPost, "/v1/tasks", nil, body)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out), nil
	}
}

func makeGetTaskHandler(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("task_id", "")
		if id == "" {
			return errorResult(errors.New("task_id is required")), nil
		}
		out, err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(id), nil, nil)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out), nil
	}
}

func makePathsHandler(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		from := request.GetFloat("from", -1)
		to := request.GetFloat("to", -1)
		if from < 0 || to < 0 {
			return errorResult(errors.New("from and to are required")), nil
		}
		q := url.Values{}
		q.Set("from", strconv.Itoa(int(from)))
		q.Set("to", strconv.Itoa(int(to)))
		if k := request.GetFloat("k", 0); k > 0 {
			q.Set("k", strconv.Itoa(int(k)))
		}
		out, err := c.do(ctx, http.MethodGet, "/v1/paths", q, nil)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out), nil
	}
}

func makeDispatchesHandler(c *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := url.Values{}
		if l := request.GetFloat("limit", 0); l > 0 {
			q.Set("limit", strconv.Itoa(int(l)))
		}
		if cur := request.GetString("cursor", ""); cur != "" {
			q.Set("cursor", cur)
		}
		out, err := c.do(ctx, http.MethodGet, "/v1/dispatches", q, nil)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(out), nil
	}
}
