package toon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUniformObjectArrayIsTabular(t *testing.T) {
	data := map[string]any{
		"users": []any{
			map[string]any{"id": 1, "name": "Alice"},
			map[string]any{"id": 2, "name": "Bob"},
		},
	}
	out, err := New().Encode(data)
	require.NoError(t, err)
	assert.Contains(t, out, "users[2]{id,name}:")
	assert.Contains(t, out, "1,Alice")
	assert.Contains(t, out, "2,Bob")
}

func TestEncodeScalarArrayIsInline(t *testing.T) {
	out, err := New().Encode(map[string]any{"tags": []any{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Contains(t, out, "tags[3]: a,b,c")
}

func TestEncodeCompactUsesTabDelimiter(t *testing.T) {
	data := map[string]any{
		"rows": []any{
			map[string]any{"a": 1, "b": 2},
			map[string]any{"a": 3, "b": 4},
		},
	}
	out, err := Compact().Encode(data)
	require.NoError(t, err)
	assert.Contains(t, out, "1\t2")
}

func TestEncodeKeyFoldingFlattensNestedObjects(t *testing.T) {
	data := map[string]any{"data": map[string]any{"user": map[string]any{"name": "Alice"}}}
	out, err := Encoder{FoldKeys: true}.Encode(data)
	require.NoError(t, err)
	assert.Contains(t, out, "data.user.name: Alice")
}

func TestScalarTokenQuotesStringsWithDelimiters(t *testing.T) {
	assert.Equal(t, `"a,b"`, scalarToken("a,b"))
	assert.Equal(t, "plain", scalarToken("plain"))
	assert.Equal(t, "42", scalarToken(float64(42)))
}

func TestToolSchemaToTOONIncludesNameAndDescription(t *testing.T) {
	out, err := ToolSchemaToTOON(ToolSchema{Name: "search", Description: "Search things"})
	require.NoError(t, err)
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "Search things")
}
