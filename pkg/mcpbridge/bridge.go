// Package mcpbridge is the gateway's single touchpoint with the Model
// Context Protocol: an HTTP-transport JSON-RPC client that can list a
// remote MCP server's tools and merge them into a Dialect A tool catalog,
// and invoke one of them by name. It is
// deliberately thin — the bridge is a loosely-coupled collaborator, not
// part of the translation/dispatch core — trimmed from the teacher SDK's
// pkg/mcp client down to the catalog-merge seam this gateway actually
// needs: initialize, list tools, call tool, over HTTP only.
package mcpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

// ProtocolVersion is the MCP protocol version this bridge speaks.
const ProtocolVersion = "2024-11-05"

// request and response mirror the JSON-RPC 2.0 envelope, the same shape
// the teacher SDK's pkg/mcp/jsonrpc.go uses.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// Tool is one tool exposed by the remote MCP server.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Bridge talks to a single remote MCP server over HTTP.
type Bridge struct {
	serverURL string
	http      *http.Client
	nextID    int
}

// New builds a Bridge pointed at an MCP server's HTTP endpoint.
func New(serverURL string, httpClient *http.Client) *Bridge {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bridge{serverURL: serverURL, http: httpClient}
}

func (b *Bridge) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	b.nextID++
	req := request{JSONRPC: "2.0", ID: b.nextID, Method: method, Params: params}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal mcp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mcp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mcp request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var rpcResp response
	if err := json.NewDecoder(httpResp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode mcp response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// ListTools fetches the remote server's tool catalog.
func (b *Bridge) ListTools(ctx context.Context) ([]Tool, error) {
	var result listToolsResult
	if err := b.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a named tool with the given arguments and returns its
// text content joined with newlines.
func (b *Bridge) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, bool, error) {
	var result callToolResult
	if err := b.call(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments}, &result); err != nil {
		return "", false, err
	}

	text := ""
	for i, block := range result.Content {
		if i > 0 {
			text += "\n"
		}
		text += block.Text
	}
	return text, result.IsError, nil
}

// MergeTools appends the remote server's tools to catalog, translated into
// Dialect A tool entries. Tools already present in catalog by name are
// left untouched rather than duplicated.
func MergeTools(catalog []dialect.Tool, mcpTools []Tool) []dialect.Tool {
	seen := make(map[string]bool, len(catalog))
	for _, t := range catalog {
		seen[t.Name] = true
	}

	merged := catalog
	for _, mt := range mcpTools {
		if seen[mt.Name] {
			continue
		}
		schema, err := json.Marshal(mt.InputSchema)
		if err != nil {
			schema = []byte(`{"type":"object"}`)
		}
		merged = append(merged, dialect.Tool{
			Name:        mt.Name,
			Description: mt.Description,
			InputSchema: schema,
		})
		seen[mt.Name] = true
	}
	return merged
}
