package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/deepagent-run/deepagent/internal/message"
	"github.com/deepagent-run/deepagent/internal/tool"
)

const maxToolNameLen = 64

// ToolCaller defines the MCP tool execution contract used by the bridge.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ResourceReader defines the MCP resource read contract used by the bridge.
type ResourceReader interface {
	ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error)
}

// PromptGetter defines the MCP prompt get contract used by the bridge.
type PromptGetter interface {
	GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error)
}

// ToolPolicyRegistrar allows MCP tools to be mapped into policy systems.
type ToolPolicyRegistrar interface {
	RegisterAlias(alias string, canonical string)
	RegisterMCPServer(serverID string, tools []string)
}

// ToolBridge wraps an MCP tool as a core Tool (§4.9's adapter). The
// original MCP tool name is used when calling the server; Name() returns
// the rewritten, namespace-prefixed, underscore-normalized name exposed
// to the planner.
type ToolBridge struct {
	caller    ToolCaller
	serverID  string
	tool      *MCPTool
	name      string
	namespace string
}

// NewToolBridge creates a bridge tool with a precomputed safe name.
func NewToolBridge(caller ToolCaller, serverID string, t *MCPTool, safeName string) *ToolBridge {
	return &ToolBridge{caller: caller, serverID: serverID, tool: t, name: safeName}
}

func (b *ToolBridge) Name() string { return b.name }

func (b *ToolBridge) Schema() tool.Schema {
	return tool.Schema{
		Name:        b.name,
		Description: b.description(),
		Parameters:  AdaptSchema(b.tool.InputSchema),
	}
}

func (b *ToolBridge) description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

// Execute invokes the MCP tool via the manager, using the original
// (un-rewritten) tool name.
func (b *ToolBridge) Execute(ctx context.Context, params json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
	var arguments map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &arguments); err != nil {
			return message.ToolResult{}, err
		}
	}

	result, err := b.caller.CallTool(ctx, b.serverID, b.tool.Name, arguments)
	if err != nil {
		return message.ToolResult{}, err
	}

	content := formatToolCallResult(result)
	return tc.TextResponse(content), nil
}

// ResourceListBridge exposes MCP resources/list as a tool.
type ResourceListBridge struct {
	lister   *Manager
	serverID string
	name     string
}

func NewResourceListBridge(mgr *Manager, serverID, safeName string) *ResourceListBridge {
	return &ResourceListBridge{lister: mgr, serverID: serverID, name: safeName}
}

func (b *ResourceListBridge) Name() string { return b.name }

func (b *ResourceListBridge) Schema() tool.Schema {
	return tool.Schema{
		Name:        b.name,
		Description: fmt.Sprintf("List MCP resources for %s", b.serverID),
		Parameters:  &tool.ParameterSchema{Type: tool.TypeObject},
	}
}

func (b *ResourceListBridge) Execute(ctx context.Context, params json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
	resources := b.lister.AllResources()[b.serverID]
	payload, err := json.Marshal(resources)
	if err != nil {
		return message.ToolResult{}, err
	}
	return tc.TextResponse(string(payload)), nil
}

// ResourceReadBridge exposes MCP resources/read as a tool.
type ResourceReadBridge struct {
	reader   ResourceReader
	serverID string
	name     string
}

func NewResourceReadBridge(reader ResourceReader, serverID, safeName string) *ResourceReadBridge {
	return &ResourceReadBridge{reader: reader, serverID: serverID, name: safeName}
}

func (b *ResourceReadBridge) Name() string { return b.name }

func (b *ResourceReadBridge) Schema() tool.Schema {
	return tool.Schema{
		Name:        b.name,
		Description: fmt.Sprintf("Read an MCP resource from %s (provide uri)", b.serverID),
		Parameters: &tool.ParameterSchema{
			Type:       tool.TypeObject,
			Properties: map[string]*tool.ParameterSchema{"uri": {Type: tool.TypeString}},
			Required:   []string{"uri"},
		},
	}
}

func (b *ResourceReadBridge) Execute(ctx context.Context, params json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
	var input struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return message.ToolResult{}, err
	}
	if strings.TrimSpace(input.URI) == "" {
		return message.ToolResult{}, fmt.Errorf("uri is required")
	}
	contents, err := b.reader.ReadResource(ctx, b.serverID, input.URI)
	if err != nil {
		return message.ToolResult{}, err
	}
	return tc.TextResponse(formatResourceContents(contents)), nil
}

// PromptListBridge exposes MCP prompts/list as a tool.
type PromptListBridge struct {
	lister   *Manager
	serverID string
	name     string
}

func NewPromptListBridge(mgr *Manager, serverID, safeName string) *PromptListBridge {
	return &PromptListBridge{lister: mgr, serverID: serverID, name: safeName}
}

func (b *PromptListBridge) Name() string { return b.name }

func (b *PromptListBridge) Schema() tool.Schema {
	return tool.Schema{
		Name:        b.name,
		Description: fmt.Sprintf("List MCP prompts for %s", b.serverID),
		Parameters:  &tool.ParameterSchema{Type: tool.TypeObject},
	}
}

func (b *PromptListBridge) Execute(ctx context.Context, params json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
	prompts := b.lister.AllPrompts()[b.serverID]
	payload, err := json.Marshal(prompts)
	if err != nil {
		return message.ToolResult{}, err
	}
	return tc.TextResponse(string(payload)), nil
}

// PromptGetBridge exposes MCP prompts/get as a tool.
type PromptGetBridge struct {
	getter   PromptGetter
	serverID string
	name     string
}

func NewPromptGetBridge(getter PromptGetter, serverID, safeName string) *PromptGetBridge {
	return &PromptGetBridge{getter: getter, serverID: serverID, name: safeName}
}

func (b *PromptGetBridge) Name() string { return b.name }

func (b *PromptGetBridge) Schema() tool.Schema {
	return tool.Schema{
		Name:        b.name,
		Description: fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", b.serverID),
		Parameters: &tool.ParameterSchema{
			Type: tool.TypeObject,
			Properties: map[string]*tool.ParameterSchema{
				"name":      {Type: tool.TypeString},
				"arguments": {Type: tool.TypeObject},
			},
			Required: []string{"name"},
		},
	}
}

func (b *PromptGetBridge) Execute(ctx context.Context, params json.RawMessage, tc *tool.Context) (message.ToolResult, error) {
	var input struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return message.ToolResult{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return message.ToolResult{}, fmt.Errorf("name is required")
	}
	result, err := b.getter.GetPrompt(ctx, b.serverID, input.Name, input.Arguments)
	if err != nil {
		return message.ToolResult{}, err
	}
	return tc.TextResponse(formatPromptResult(result)), nil
}

// RegisterTools registers all available MCP tools with the registry.
func RegisterTools(registry *tool.Registry, mgr *Manager) []string {
	return RegisterToolsWithRegistrar(registry, mgr, nil)
}

// RegisterToolsWithRegistrar registers MCP tools and optionally registers
// policy aliases.
func RegisterToolsWithRegistrar(registry *tool.Registry, mgr *Manager, registrar ToolPolicyRegistrar) []string {
	if registry == nil || mgr == nil {
		return nil
	}

	tools := listToolsSorted(mgr)
	used := make(map[string]struct{})
	registered := make([]string, 0, len(tools))
	serverTools := make(map[string][]string)
	for _, entry := range tools {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		_ = registry.Register(NewToolBridge(mgr, entry.serverID, entry.tool, name))
		registered = append(registered, name)
		serverTools[entry.serverID] = append(serverTools[entry.serverID], entry.tool.Name)
		if registrar != nil {
			registrar.RegisterAlias(name, canonicalToolName(entry.serverID, entry.tool.Name))
		}
	}

	serverIDs := listServerIDs(mgr)
	for _, serverID := range serverIDs {
		resListName := safeToolName(serverID, "resources_list", used)
		resReadName := safeToolName(serverID, "resource_read", used)
		promptListName := safeToolName(serverID, "prompts_list", used)
		promptGetName := safeToolName(serverID, "prompt_get", used)

		_ = registry.Register(NewResourceListBridge(mgr, serverID, resListName))
		_ = registry.Register(NewResourceReadBridge(mgr, serverID, resReadName))
		_ = registry.Register(NewPromptListBridge(mgr, serverID, promptListName))
		_ = registry.Register(NewPromptGetBridge(mgr, serverID, promptGetName))

		registered = append(registered, resListName, resReadName, promptListName, promptGetName)

		if registrar != nil {
			registrar.RegisterAlias(resListName, canonicalResourceList(serverID))
			registrar.RegisterAlias(resReadName, canonicalResourceRead(serverID))
			registrar.RegisterAlias(promptListName, canonicalPromptList(serverID))
			registrar.RegisterAlias(promptGetName, canonicalPromptGet(serverID))
		}

		serverTools[serverID] = append(serverTools[serverID],
			"resources.list",
			"resources.read",
			"prompts.list",
			"prompts.get",
		)
	}

	if registrar != nil {
		for serverID, names := range serverTools {
			registrar.RegisterMCPServer(serverID, names)
		}
	}

	return registered
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Name < tools[j].Name
		})
		for _, t := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: t})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// safeToolName builds the manager-wide registration name
// "mcp_<server>_<tool>" from sanitized parts, shortens it with a hash when
// it exceeds maxToolNameLen, and makes it unique with a hash when it is
// already present in used. AdaptToolName below is the plain single-tool rewrite
// used when a namespace is configured explicitly per §4.9 and S6.
func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

// AdaptToolName implements the exact §4.9/S6 rewrite rule: replace "-"
// with "_", then prefix "<namespace>_" if namespace is non-empty.
func AdaptToolName(namespace, toolName string) string {
	rewritten := strings.ReplaceAll(toolName, "-", "_")
	if namespace == "" {
		return rewritten
	}
	return namespace + "_" + rewritten
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

// AdaptSchema transforms an advertised MCP JSON schema into the core
// ParameterSchema, preserving type/description/properties/required/
// items/enum/default and stashing unknown keys into Additional.
func AdaptSchema(raw json.RawMessage) *tool.ParameterSchema {
	if len(raw) == 0 {
		return &tool.ParameterSchema{Type: tool.TypeObject}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &tool.ParameterSchema{Type: tool.TypeObject}
	}
	return adaptSchemaNode(doc)
}

var knownSchemaKeys = map[string]struct{}{
	"type": {}, "description": {}, "properties": {}, "required": {},
	"items": {}, "enum": {}, "default": {},
}

func adaptSchemaNode(doc map[string]json.RawMessage) *tool.ParameterSchema {
	p := &tool.ParameterSchema{Type: tool.TypeObject}

	if raw, ok := doc["type"]; ok {
		var t string
		if err := json.Unmarshal(raw, &t); err == nil {
			p.Type = tool.ParamType(t)
		}
	}
	if raw, ok := doc["description"]; ok {
		_ = json.Unmarshal(raw, &p.Description)
	}
	if raw, ok := doc["properties"]; ok {
		var props map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &props); err == nil {
			p.Properties = make(map[string]*tool.ParameterSchema, len(props))
			for k, v := range props {
				p.Properties[k] = adaptSchemaNode(v)
			}
		}
	}
	if raw, ok := doc["required"]; ok {
		_ = json.Unmarshal(raw, &p.Required)
	}
	if raw, ok := doc["items"]; ok {
		var items map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			p.Items = adaptSchemaNode(items)
		}
	}
	if raw, ok := doc["enum"]; ok {
		_ = json.Unmarshal(raw, &p.Enum)
	}
	if raw, ok := doc["default"]; ok {
		_ = json.Unmarshal(raw, &p.Default)
	}

	for k, raw := range doc {
		if _, known := knownSchemaKeys[k]; known {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			if p.Additional == nil {
				p.Additional = make(map[string]any)
			}
			p.Additional[k] = v
		}
	}
	return p
}

// formatToolCallResult implements §4.9's content-flattening rule: Text
// payloads, the text field of Resource content, and an image placeholder,
// joined by newlines; "Error: " prefix when IsError is set.
func formatToolCallResult(result *ToolCallResult) string {
	if result == nil {
		return ""
	}
	text := flattenContent(result.Content)
	if result.IsError {
		return "Error: " + text
	}
	return text
}

func flattenContent(items []ToolResultContent) string {
	var lines []string
	for _, item := range items {
		switch item.Type {
		case "text":
			if item.Text != "" {
				lines = append(lines, item.Text)
			}
		case "resource":
			if item.Text != "" {
				lines = append(lines, item.Text)
			}
		case "image":
			lines = append(lines, fmt.Sprintf("[Image: %s (%d bytes)]", item.MimeType, len(item.Data)))
		}
	}
	return strings.Join(lines, "\n")
}

func formatResourceContents(contents []*ResourceContent) string {
	if len(contents) == 0 {
		return ""
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return ""
	}
	return string(payload)
}

func formatPromptResult(result *GetPromptResult) string {
	if result == nil || len(result.Messages) == 0 {
		return ""
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return ""
	}
	return string(payload)
}

func canonicalToolName(serverID, toolName string) string {
	return fmt.Sprintf("mcp:%s.%s", serverID, toolName)
}

func canonicalResourceList(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.list", serverID)
}

func canonicalResourceRead(serverID string) string {
	return fmt.Sprintf("mcp:%s.resources.read", serverID)
}

func canonicalPromptList(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.list", serverID)
}

func canonicalPromptGet(serverID string) string {
	return fmt.Sprintf("mcp:%s.prompts.get", serverID)
}
