// Package toon implements TOON (Token-Oriented Object Notation), a
// compact, human-readable serialization format for LLM prompts, adapted
// from the original SDK's agents-core toon module. Uniform arrays of
// objects render as a header row plus delimited data rows instead of
// repeating every key per element, which is where TOON's token savings
// over JSON come from:
//
//	users[2]{id,name}:
//	  1,Alice
//	  2,Bob
//
// No example repo in the retrieval pack carries a TOON implementation
// (it is a niche, recently-introduced format), so this is a direct,
// from-scratch port of the original's encoder rather than a
// library-backed adapter.
package toon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encoder converts arbitrary JSON-shaped values to TOON text.
type Encoder struct {
	// UseTabs selects a tab delimiter over the default comma, for
	// marginally denser tabular rows.
	UseTabs bool
	// FoldKeys renders nested objects as dotted paths ("data.user.name:
	// Alice") instead of indented blocks.
	FoldKeys bool
}

// New returns an Encoder with default (comma-delimited, unfolded)
// settings.
func New() Encoder { return Encoder{} }

// Compact returns an Encoder tuned for maximum token savings: tab
// delimiters and key folding both enabled.
func Compact() Encoder { return Encoder{UseTabs: true, FoldKeys: true} }

// WithTabs returns a copy of e with UseTabs set.
func (e Encoder) WithTabs(v bool) Encoder { e.UseTabs = v; return e }

// WithKeyFolding returns a copy of e with FoldKeys set.
func (e Encoder) WithKeyFolding(v bool) Encoder { e.FoldKeys = v; return e }

func (e Encoder) delimiter() string {
	if e.UseTabs {
		return "\t"
	}
	return ","
}

// Encode marshals v to JSON and renders the result as TOON.
func (e Encoder) Encode(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toon: marshal: %w", err)
	}
	return e.EncodeJSON(payload)
}

// EncodeJSON renders a JSON document as TOON.
func (e Encoder) EncodeJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("toon: unmarshal: %w", err)
	}
	var b strings.Builder
	e.encodeValue(&b, "", v, 0)
	return strings.TrimRight(b.String(), "\n"), nil
}

// EncodeDefault encodes v with New()'s settings.
func EncodeDefault(v any) (string, error) {
	return New().Encode(v)
}

func (e Encoder) encodeValue(b *strings.Builder, key string, v any, indent int) {
	pad := strings.Repeat("  ", indent)
	switch val := v.(type) {
	case map[string]any:
		e.encodeObject(b, key, val, indent)
	case []any:
		e.encodeArray(b, key, val, indent)
	default:
		line := scalarToken(val)
		if key == "" {
			fmt.Fprintf(b, "%s%s\n", pad, line)
		} else {
			fmt.Fprintf(b, "%s%s: %s\n", pad, key, line)
		}
	}
}

func (e Encoder) encodeObject(b *strings.Builder, key string, obj map[string]any, indent int) {
	pad := strings.Repeat("  ", indent)
	if key != "" {
		if e.FoldKeys {
			e.encodeFolded(b, key, obj, indent)
			return
		}
		fmt.Fprintf(b, "%s%s:\n", pad, key)
		indent++
		pad = strings.Repeat("  ", indent)
	}

	for _, k := range sortedKeys(obj) {
		e.encodeValue(b, k, obj[k], indent)
	}
}

// encodeFolded flattens nested object keys into dotted paths, e.g.
// "data.user.name: Alice", stopping the fold at arrays and scalars.
func (e Encoder) encodeFolded(b *strings.Builder, prefix string, obj map[string]any, indent int) {
	pad := strings.Repeat("  ", indent)
	for _, k := range sortedKeys(obj) {
		full := prefix + "." + k
		switch val := obj[k].(type) {
		case map[string]any:
			e.encodeFolded(b, full, val, indent)
		case []any:
			e.encodeArray(b, full, val, indent)
		default:
			fmt.Fprintf(b, "%s%s: %s\n", pad, full, scalarToken(val))
		}
	}
}

func (e Encoder) encodeArray(b *strings.Builder, key string, arr []any, indent int) {
	pad := strings.Repeat("  ", indent)
	if len(arr) == 0 {
		fmt.Fprintf(b, "%s%s[0]:\n", pad, key)
		return
	}

	if cols, ok := uniformObjectColumns(arr); ok {
		fmt.Fprintf(b, "%s%s[%d]{%s}:\n", pad, key, len(arr), strings.Join(cols, ","))
		rowPad := strings.Repeat("  ", indent+1)
		delim := e.delimiter()
		for _, item := range arr {
			row := item.(map[string]any)
			cells := make([]string, len(cols))
			for i, c := range cols {
				cells[i] = scalarToken(row[c])
			}
			fmt.Fprintf(b, "%s%s\n", rowPad, strings.Join(cells, delim))
		}
		return
	}

	if allScalar(arr) {
		cells := make([]string, len(arr))
		for i, item := range arr {
			cells[i] = scalarToken(item)
		}
		fmt.Fprintf(b, "%s%s[%d]: %s\n", pad, key, len(arr), strings.Join(cells, e.delimiter()))
		return
	}

	fmt.Fprintf(b, "%s%s[%d]:\n", pad, key, len(arr))
	for _, item := range arr {
		e.encodeValue(b, "", item, indent+1)
	}
}

// uniformObjectColumns reports whether arr is entirely objects sharing
// the exact same key set, and if so, the columns in a stable order.
func uniformObjectColumns(arr []any) ([]string, bool) {
	first, ok := arr[0].(map[string]any)
	if !ok {
		return nil, false
	}
	cols := sortedKeys(first)
	for _, item := range arr[1:] {
		obj, ok := item.(map[string]any)
		if !ok || len(obj) != len(cols) {
			return nil, false
		}
		for _, c := range cols {
			if _, ok := obj[c]; !ok {
				return nil, false
			}
		}
	}
	for _, v := range first {
		if _, ok := v.(map[string]any); ok {
			return nil, false
		}
		if _, ok := v.([]any); ok {
			return nil, false
		}
	}
	return cols, true
}

func allScalar(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarToken(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.ContainsAny(val, ",\t\n") {
			return strconv.Quote(val)
		}
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		payload, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(payload)
	}
}

// ToolSchema is the minimal shape tool.Schema is adapted to, kept local
// to avoid an import cycle with internal/tool.
type ToolSchema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// ToolSchemaToTOON renders a tool schema in TOON for inclusion in a
// system prompt, as an alternative to a provider's native tool-calling
// payload.
func ToolSchemaToTOON(schema ToolSchema) (string, error) {
	return EncodeDefault(schema)
}

// FormatToolCall renders a tool name plus its arguments in TOON, for
// few-shot tool-call examples embedded in a system prompt.
func FormatToolCall(toolName string, args any) (string, error) {
	return EncodeDefault(map[string]any{"tool": toolName, "args": args})
}
