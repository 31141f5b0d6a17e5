// Package out renders result envelopes as indented JSON, compact JSON lines
// or key=value plain text.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/bscdefi/internal/config"
	"github.com/ggonzalez94/bscdefi/internal/model"
)

const (
	ModeJSON  = "json"
	ModePlain = "plain"
	// ModeLines writes one compact JSON document per envelope.
	ModeLines = "lines"
)

type Options struct {
	Mode        string
	Select      []string
	ResultsOnly bool
}

func OptionsFrom(settings config.Settings) Options {
	return Options{Mode: settings.OutputMode, Select: settings.SelectFields, ResultsOnly: settings.ResultsOnly}
}

func Render(w io.Writer, env model.Envelope, opts Options) error {
	data := env.Data
	if len(opts.Select) > 0 {
		data = project(data, opts.Select)
	}

	switch opts.Mode {
	case ModeLines:
		env.Data = data
		if opts.ResultsOnly {
			return json.NewEncoder(w).Encode(data)
		}
		return json.NewEncoder(w).Encode(env)
	case ModePlain:
		if opts.ResultsOnly {
			return renderPlain(w, data)
		}
		plain := map[string]any{
			"success":  env.Success,
			"data":     data,
			"warnings": env.Warnings,
			"meta":     env.Meta,
		}
		if env.Error != nil {
			plain["error"] = env.Error
		}
		return renderPlain(w, plain)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if opts.ResultsOnly {
			return enc.Encode(data)
		}
		env.Data = data
		return enc.Encode(env)
	}
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		line, err := toLine("", normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
	if v.Len() == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for i := 0; i < v.Len(); i++ {
		line, err := toLine("", normalizeValue(v.Index(i).Interface()))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// project keeps the selected fields. A field may be a dotted path such as
// "delta.decimal".
func project(data any, fields []string) any {
	switch t := normalizeValue(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return t
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, strings.Split(f, ".")); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	next, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return lookup(next, path[1:])
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

// toLine flattens nested maps into dotted key=value pairs.
func toLine(prefix string, v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		if prefix == "" {
			return string(buf), nil
		}
		return prefix + "=" + string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := m[k].(type) {
		case map[string]any:
			if len(t) == 0 {
				continue
			}
			nested, err := toLine(key, t)
			if err != nil {
				return "", err
			}
			parts = append(parts, nested)
		case string:
			parts = append(parts, key+"="+t)
		case nil:
			continue
		default:
			buf, err := json.Marshal(t)
			if err != nil {
				return "", err
			}
			parts = append(parts, key+"="+string(buf))
		}
	}
	return strings.Join(parts, " "), nil
}
