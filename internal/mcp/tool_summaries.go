package mcp

import "encoding/json"

// ToolSummary is a lightweight description of an MCP-backed tool, used for
// inventory/inspection purposes (e.g. an admin endpoint or CLI listing)
// without constructing the full core.Tool bridge.
type ToolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Source      string          `json:"source"`
	Namespace   string          `json:"namespace"`
	Canonical   string          `json:"canonical"`
}

// ToolSummaries returns summary metadata for every tool, resource-list,
// resource-read, prompt-list and prompt-get bridge that RegisterTools would
// register, using the same safe-naming scheme, without mutating a registry.
func ToolSummaries(mgr *Manager) []ToolSummary {
	if mgr == nil {
		return nil
	}

	tools := listToolsSorted(mgr)
	used := make(map[string]struct{})
	summaries := make([]ToolSummary, 0, len(tools))

	for _, entry := range tools {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		summaries = append(summaries, ToolSummary{
			Name:        name,
			Description: entry.tool.Description,
			Schema:      entry.tool.InputSchema,
			Source:      "mcp",
			Namespace:   entry.serverID,
			Canonical:   canonicalToolName(entry.serverID, entry.tool.Name),
		})
	}

	for _, serverID := range listServerIDs(mgr) {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		summaries = append(summaries,
			ToolSummary{Name: resListName, Description: "List MCP resources", Source: "mcp", Namespace: serverID, Canonical: canonicalResourceList(serverID)},
			ToolSummary{Name: resReadName, Description: "Read an MCP resource", Source: "mcp", Namespace: serverID, Canonical: canonicalResourceRead(serverID)},
			ToolSummary{Name: promptListName, Description: "List MCP prompts", Source: "mcp", Namespace: serverID, Canonical: canonicalPromptList(serverID)},
			ToolSummary{Name: promptGetName, Description: "Fetch an MCP prompt", Source: "mcp", Namespace: serverID, Canonical: canonicalPromptGet(serverID)},
		)
	}

	return summaries
}
