package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/policy"
	"github.com/ggonzalez94/bscdefi/internal/tools"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newToolsCommand() *cobra.Command {
	root := &cobra.Command{Use: "tools", Short: "Tool catalog"}
	var onlyMutating, onlyRead bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tools with their input schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			if onlyMutating && onlyRead {
				return clierr.New(clierr.CodeUsage, "--mutating and --read are mutually exclusive")
			}
			svc, err := s.services(cmd.Context())
			if err != nil {
				return err
			}
			items := []tools.Tool{}
			for _, t := range svc.catalog.List() {
				if (onlyMutating && !t.Mutating) || (onlyRead && t.Mutating) {
					continue
				}
				if policy.CheckToolAllowed(s.settings.EnableTools, t.Name, t.Mutating) != nil {
					continue
				}
				items = append(items, t)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}
	list.Flags().BoolVar(&onlyMutating, "mutating", false, "Only tools that submit transactions")
	list.Flags().BoolVar(&onlyRead, "read", false, "Only read-only tools")
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newCallCommand() *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "call <tool> [key=value ...]",
		Short: "Invoke one tool",
		Example: `  bscdefi call venus_lend asset=USDT amount=25
  bscdefi call get_apy --args '{"pool":"slisBNB"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseKeyValues(args[1:])
			if err != nil {
				return err
			}
			if strings.TrimSpace(rawArgs) != "" {
				fromJSON, err := decodeArguments([]byte(rawArgs))
				if err != nil {
					return err
				}
				for k, v := range fromJSON {
					if _, dup := toolArgs[k]; !dup {
						toolArgs[k] = v
					}
				}
			}
			s.lastCommand = "call " + args[0]
			res := s.invoke(cmd.Context(), args[0], toolArgs)
			s.captureDiagnostics(res.data, res.warnings, res.providers, res.partial)
			if res.err != nil {
				return res.err
			}
			return s.emitSuccess(s.lastCommand, res.data, res.warnings, res.cache, res.providers, res.partial)
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "Tool arguments as a JSON object (key=value pairs win)")
	return cmd
}

// outcome is the transport-neutral result of one tool invocation.
type outcome struct {
	data      any
	warnings  []string
	providers []model.ProviderStatus
	cache     model.CacheStatus
	partial   bool
	err       error
}

func (s *runtimeState) invoke(ctx context.Context, name string, args map[string]string) outcome {
	svc, err := s.services(ctx)
	if err != nil {
		return outcome{err: err}
	}
	tool, err := svc.catalog.Lookup(name)
	if err != nil {
		return outcome{err: err}
	}
	if err := policy.CheckToolAllowed(s.settings.EnableTools, tool.Name, tool.Mutating); err != nil {
		return outcome{err: err}
	}
	if tool.CacheTTL > 0 {
		return s.invokeCached(ctx, svc, tool, args)
	}

	if !tool.Mutating {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}
	res, err := svc.catalog.Call(ctx, tool, args)
	o := outcome{data: res.Data, warnings: res.Warnings, providers: res.Providers, cache: cacheMetaBypass(), partial: res.Partial, err: err}
	if err == nil && res.Partial && s.settings.Strict {
		o.err = clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")
	}
	return o
}

// invokeCached serves fresh cache hits, fetches otherwise, and falls back to
// stale entries within the max-stale budget when the provider is down.
func (s *runtimeState) invokeCached(ctx context.Context, svc *services, tool tools.Tool, args map[string]string) outcome {
	normalized, err := tool.Input.Apply(args)
	if err != nil {
		return outcome{err: err}
	}
	key := cacheKey(tool.Name, normalized)
	backend := s.yieldCache(ctx)

	var (
		staleData      any
		staleAvailable bool
		staleAge       time.Duration
		staleStatus    model.CacheStatus
	)
	if backend != nil {
		cached, err := backend.Get(ctx, key, s.settings.MaxStale)
		if err == nil && cached.Hit {
			var data any
			if json.Unmarshal(cached.Value, &data) == nil {
				status := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
				if !cached.Stale {
					s.metrics.Cache("hit")
					return outcome{data: data, cache: status}
				}
				staleData, staleAvailable, staleAge, staleStatus = data, true, cached.Age, status
			}
		}
	}
	s.metrics.Cache("miss")

	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	observed := time.Now()
	res, err := svc.catalog.Call(fetchCtx, tool, normalized)
	if err != nil {
		if !staleAvailable || !staleFallbackAllowed(err) {
			return outcome{providers: res.Providers, err: err}
		}
		age := staleAge + time.Since(observed)
		staleStatus.AgeMS = age.Milliseconds()
		if s.settings.NoStale {
			return outcome{providers: res.Providers, err: clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and stale fallback is disabled (--no-stale)", err)}
		}
		if staleExceedsBudget(age, tool.CacheTTL, s.settings.MaxStale) {
			return outcome{providers: res.Providers, err: clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and cached data exceeded stale budget", err)}
		}
		s.metrics.Cache("stale")
		return outcome{
			data:      staleData,
			warnings:  append(res.Warnings, "provider fetch failed; serving stale data within max-stale budget"),
			providers: res.Providers,
			cache:     staleStatus,
		}
	}
	if res.Partial && s.settings.Strict {
		return outcome{data: res.Data, warnings: res.Warnings, providers: res.Providers, partial: true,
			err: clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")}
	}

	status := cacheMetaMiss()
	if backend != nil && !res.Partial {
		if payload, err := json.Marshal(res.Data); err == nil && backend.Set(ctx, key, payload, tool.CacheTTL) == nil {
			status = model.CacheStatus{Status: "write"}
		}
	}
	return outcome{data: res.Data, warnings: res.Warnings, providers: res.Providers, cache: status, partial: res.Partial}
}

func parseKeyValues(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("argument %q must be key=value", arg))
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// decodeArguments turns a JSON object into string arguments. Numbers keep
// their literal text so decimal amounts are never rounded through float64.
func decodeArguments(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "arguments must be a JSON object", err)
	}
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("argument %q must be a string, number or boolean", k))
		}
	}
	return out, nil
}
