package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleToolDerivesSchemaFromSignatureAndDocstring(t *testing.T) {
	fn := func(text string, times int, shout bool) (string, error) {
		out := strings.Repeat(text, times)
		if shout {
			out = strings.ToUpper(out)
		}
		return out, nil
	}

	tool, err := SimpleTool("repeat", fn, []string{"text", "times", "shout"}, `Repeats text a number of times.

Args:
    text: the text to repeat
    times: how many times to repeat it
    shout: uppercase the result
`)
	require.NoError(t, err)

	require.Equal(t, "repeat", tool.Schema.Name)
	require.Equal(t, "Repeats text a number of times.", tool.Schema.Description)

	props := tool.Schema.Parameters.Properties
	require.Equal(t, "string", props["text"].Type)
	require.Equal(t, "the text to repeat", props["text"].Description)
	require.Equal(t, "number", props["times"].Type)
	require.Equal(t, "boolean", props["shout"].Type)
	require.ElementsMatch(t, []string{"text", "times", "shout"}, tool.Schema.Parameters.Required)
}

func TestSimpleToolParamCountMismatch(t *testing.T) {
	fn := func(a string) (string, error) { return a, nil }
	_, err := SimpleTool("bad", fn, []string{"a", "b"}, "doc")
	require.Error(t, err)
}

func TestSimpleToolNonStringReturnIsJSONCoerced(t *testing.T) {
	fn := func(n int) (map[string]int, error) {
		return map[string]int{"doubled": n * 2}, nil
	}
	tool, err := SimpleTool("double", fn, []string{"n"}, "Doubles.")
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), map[string]any{"n": float64(4)})
	require.NoError(t, err)
	require.JSONEq(t, `{"doubled":8}`, out)
}

type translateArgs struct {
	Text   string `json:"text" jsonschema:"description=the text to translate"`
	Target string `json:"target" jsonschema:"description=target language code"`
}

func TestStructToolReflectsSchemaFromStruct(t *testing.T) {
	tool, err := StructTool("translate", "Translates text.",
		func(_ context.Context, a translateArgs) (string, error) {
			return a.Target + ": " + a.Text, nil
		})
	require.NoError(t, err)

	require.Equal(t, "translate", tool.Schema.Name)
	require.Equal(t, "object", tool.Schema.Parameters.Type)

	props := tool.Schema.Parameters.Properties
	require.Equal(t, "string", props["text"].Type)
	require.Equal(t, "the text to translate", props["text"].Description)
	require.Contains(t, tool.Schema.Parameters.Required, "text")
	require.Contains(t, tool.Schema.Parameters.Required, "target")
}

func TestStructToolDecodesArgumentsIntoStruct(t *testing.T) {
	tool, err := StructTool("translate", "Translates text.",
		func(_ context.Context, a translateArgs) (string, error) {
			return a.Target + ": " + a.Text, nil
		})
	require.NoError(t, err)

	out, err := tool.Invoke(context.Background(), map[string]any{
		"text": "bonjour", "target": "en",
	})
	require.NoError(t, err)
	require.Equal(t, "en: bonjour", out)
}
