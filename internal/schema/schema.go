// Package schema describes the command tree and the input shape of every tool
// so agents can discover them without reading help text.
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, p := range strings.Fields(strings.TrimSpace(commandPath)) {
		var next *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == p || slices.Contains(c.Aliases, p) {
				next = c
				break
			}
		}
		if next == nil {
			return CommandSchema{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("command not found: %s", commandPath))
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}

// Property is one declared tool input. Every input travels as a string.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Default     string   `json:"default,omitempty"`
}

// Input is the object schema of a tool's arguments.
type Input struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

func Object(required []string, props map[string]Property) Input {
	return Input{Type: "object", Properties: props, Required: required}
}

// Apply checks args against the schema, fills defaults and returns the
// normalized arguments. Unknown and missing keys are usage errors; a value
// outside an enum is unsupported.
func (in Input) Apply(args map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in.Properties))
	var unknown []string
	for k, v := range args {
		if _, ok := in.Properties[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, clierr.New(clierr.CodeUsage, "unknown argument(s): "+strings.Join(unknown, ", ")).
			WithDetails(map[string]any{"accepted": in.names()})
	}
	for name, prop := range in.Properties {
		if out[name] == "" && prop.Default != "" {
			out[name] = prop.Default
		}
		if v := out[name]; v != "" && len(prop.Enum) > 0 && !containsFold(prop.Enum, v) {
			return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported %s %q", name, v)).
				WithDetails(map[string]any{"supported": prop.Enum})
		}
	}
	for _, name := range in.Required {
		if out[name] == "" {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("missing required argument %q", name))
		}
	}
	return out, nil
}

func (in Input) names() []string {
	names := make([]string, 0, len(in.Properties))
	for k := range in.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}
