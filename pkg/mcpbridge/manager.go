package mcpbridge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

// Manager holds zero or more configured MCP server connections and
// aggregates their tool catalogs behind a single seam, so the gateway can
// be configured with any number of MCP servers without the Proxy
// Controller knowing about more than one bridge.
type Manager struct {
	bridges map[string]*Bridge
}

// NewManager builds a Manager from a set of named server URLs. A nil or
// empty servers map disables the bridge entirely — ListTools returns an
// empty catalog and Invoke always reports "not found".
func NewManager(servers map[string]string, httpClient *http.Client) *Manager {
	bridges := make(map[string]*Bridge, len(servers))
	for name, url := range servers {
		bridges[name] = New(url, httpClient)
	}
	return &Manager{bridges: bridges}
}

// ListTools fetches and concatenates the tool catalogs of every configured
// server. A single unreachable server does not fail the whole call; its
// tools are simply omitted.
func (m *Manager) ListTools(ctx context.Context) []Tool {
	var all []Tool
	for _, b := range m.bridges {
		tools, err := b.ListTools(ctx)
		if err != nil {
			continue
		}
		all = append(all, tools...)
	}
	return all
}

// MergeTools appends every configured server's tool catalog onto catalog,
// skipping names already present.
func (m *Manager) MergeTools(ctx context.Context, catalog []dialect.Tool) []dialect.Tool {
	return MergeTools(catalog, m.ListTools(ctx))
}

// Invoke calls a named tool on whichever configured server exposes it. The
// Proxy Controller does not call it: pkg/gateway only merges tool catalogs,
// and every tool_use in an upstream reply is returned to the client.
func (m *Manager) Invoke(ctx context.Context, name string, arguments map[string]interface{}) (string, bool, error) {
	for _, b := range m.bridges {
		tools, err := b.ListTools(ctx)
		if err != nil {
			continue
		}
		for _, t := range tools {
			if t.Name == name {
				return b.CallTool(ctx, name, arguments)
			}
		}
	}
	return "", false, fmt.Errorf("mcpbridge: no configured server exposes tool %q", name)
}
