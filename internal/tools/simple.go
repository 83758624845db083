package tools

import (
	"bufio"
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/amrita-ai/amritacore/pkg/models"
)

// SimpleTool derives a FunctionDefinitionSchema from fn's parameter names
// and types and a docstring's "Args:" section, then wraps fn as a
// default-mode Tool. This is "simple-tool sugar" (§4.5): writing
//
//	SimpleTool("echo", echo, []string{"x"}, `Repeats the input back.
//
//	Args:
//	    x: the text to repeat
//	`)
//
// is equivalent to constructing the FunctionDefinitionSchema by hand.
//
// fn must be a func whose parameters are named via paramNames (Go does not
// retain parameter names in reflection) and whose return is (T, error) or a
// single value T; a non-string T is JSON-coerced into the result string.
func SimpleTool(name string, fn any, paramNames []string, docstring string) (Tool, error) {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return Tool{}, fmt.Errorf("tools: SimpleTool requires a function, got %s", fnType.Kind())
	}
	if fnType.NumIn() != len(paramNames) {
		return Tool{}, fmt.Errorf("tools: %s declares %d parameters but %d names were given", name, fnType.NumIn(), len(paramNames))
	}

	descriptions := parseArgsSection(docstring)
	props := make(map[string]models.PropertySchema, len(paramNames))
	required := make([]string, 0, len(paramNames))
	for i, pname := range paramNames {
		props[pname] = models.PropertySchema{
			Type:        goTypeToSchemaType(fnType.In(i)),
			Description: descriptions[pname],
		}
		required = append(required, pname)
	}

	description, _, _ := strings.Cut(docstring, "Args:")
	description = strings.TrimSpace(description)

	schema := models.FunctionDefinitionSchema{
		Name:        name,
		Description: description,
		Parameters: models.ParametersSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}

	return Tool{
		Schema: schema,
		Invoke: buildInvoker(fnVal, paramNames),
	}, nil
}

// goTypeToSchemaType maps a Go kind to the JSON-Schema types the dispatcher
// honors, per §4.5 "Simple-tool sugar": integer and floating-point kinds ->
// number, boolean -> boolean, everything else -> string.
func goTypeToSchemaType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return "string"
	}
}

var argsLinePattern = regexp.MustCompile(`^\s*(\w+)\s*:\s*(.*)$`)

// parseArgsSection extracts "name: description" lines under an "Args:"
// section of a docstring.
func parseArgsSection(doc string) map[string]string {
	out := map[string]string{}
	_, after, found := strings.Cut(doc, "Args:")
	if !found {
		return out
	}
	scanner := bufio.NewScanner(strings.NewReader(after))
	for scanner.Scan() {
		line := scanner.Text()
		if m := argsLinePattern.FindStringSubmatch(line); m != nil {
			out[m[1]] = strings.TrimSpace(m[2])
		}
	}
	return out
}

// buildInvoker adapts a reflect.Value function into an InvokeFunc by
// converting the parsed-argument map into positional calls by declared
// name, coercing JSON-decoded values (float64, string, bool) to the
// function's real parameter types.
func buildInvoker(fnVal reflect.Value, paramNames []string) InvokeFunc {
	fnType := fnVal.Type()
	return func(_ context.Context, args map[string]any) (string, error) {
		in := make([]reflect.Value, len(paramNames))
		for i, name := range paramNames {
			want := fnType.In(i)
			raw, ok := args[name]
			if !ok {
				in[i] = reflect.Zero(want)
				continue
			}
			v, err := coerce(raw, want)
			if err != nil {
				return "", fmt.Errorf("tools: argument %q: %w", name, err)
			}
			in[i] = v
		}

		out := fnVal.Call(in)
		return extractResult(out)
	}
}

func coerce(raw any, want reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(raw)
	if rv.IsValid() && rv.Type().AssignableTo(want) {
		return rv, nil
	}
	if rv.IsValid() && rv.Type().ConvertibleTo(want) {
		switch want.Kind() {
		case reflect.String, reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16,
			reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16,
			reflect.Uint32, reflect.Uint64, reflect.Float32, reflect.Float64:
			return rv.Convert(want), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot coerce %T to %s", raw, want)
}

func extractResult(out []reflect.Value) (string, error) {
	switch len(out) {
	case 1:
		if errVal, ok := out[0].Interface().(error); ok {
			return "", errVal
		}
		s, err := CoerceToString(out[0].Interface())
		return s, err
	case 2:
		var err error
		if e, ok := out[1].Interface().(error); ok {
			err = e
		}
		s, convErr := CoerceToString(out[0].Interface())
		if convErr != nil {
			return "", convErr
		}
		return s, err
	default:
		return "", nil
	}
}
