package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ggonzalez94/bscdefi/internal/cache"
	"github.com/ggonzalez94/bscdefi/internal/config"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/logger"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/out"
	"github.com/ggonzalez94/bscdefi/internal/schema"
	"github.com/ggonzalez94/bscdefi/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	// newServices is swapped in tests to avoid dialing a node.
	newServices serviceFactory
	openCache   func(ctx context.Context, settings config.Settings) (cache.Backend, error)
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return NewRunnerWithIO(strings.NewReader(""), stdout, stderr)
}

func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		now:         time.Now,
		newServices: buildServices,
		openCache:   openCache,
	}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	root     *cobra.Command
	metrics  *metrics.Recorder
	svc      *services

	// cacheMu serializes the yield cache open; serve runs reads concurrently.
	cacheMu    sync.Mutex
	cacheTried bool

	lastCommand   string
	lastData      any
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	lastPartial   bool
}

func (r *Runner) Run(args []string) int {
	return r.RunContext(context.Background(), args)
}

func (r *Runner) RunContext(ctx context.Context, args []string) int {
	state := &runtimeState{runner: r, metrics: metrics.New()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.ExecuteContext(ctx))
	defer state.close()
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "DeFi operations on BNB Smart Chain: Lista DAO, KernelDAO and Venus",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.lastCommand = trimRootPath(cmd.CommandPath())
			logger.Initialize(settings.LogLevel, settings.LogFormat, s.runner.stderr)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableTools, "enable-tools", "", "Allowlist tool names (comma-separated, \"read\" for all read-only tools)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Timeout for read-only tools and provider requests")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "BSC JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error|disabled)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newToolsCommand())
	cmd.AddCommand(s.newCallCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newOperationsCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
}

func (s *runtimeState) close() {
	if s.svc != nil {
		s.svc.Close()
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta:     s.meta(commandPath, cacheStatus, providers, partial),
	}
	return out.Render(s.runner.stdout, env, out.OptionsFrom(s.settings))
}

func (s *runtimeState) meta(commandPath string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Providers: providers,
		Cache:     cacheStatus,
		Partial:   partial,
	}
}

// errorEnvelope builds a failure envelope. data is kept so a failed
// operation still reports its transactions.
func (s *runtimeState) errorEnvelope(commandPath string, err error, data any, warnings []string, providers []model.ProviderStatus, partial bool) model.Envelope {
	message := err.Error()
	var details map[string]any
	code := clierr.ExitCode(err)
	if cErr, ok := clierr.As(err); ok {
		details = cErr.Details
	}
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    data,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    clierr.TypeName(clierr.Code(code)),
			Message: message,
			Details: details,
		},
		Warnings: warnings,
		Meta:     s.meta(commandPath, cacheMetaBypass(), providers, partial),
	}
}

func (s *runtimeState) renderError(err error) {
	commandPath := s.lastCommand
	if commandPath == "" {
		commandPath = version.CLIName
	}
	opts := out.OptionsFrom(s.settings)
	if opts.Mode == "" {
		opts.Mode = out.ModeJSON
	}
	opts.ResultsOnly = false
	opts.Select = nil
	env := s.errorEnvelope(commandPath, err, s.lastData, s.lastWarnings, s.lastProviders, s.lastPartial)
	_ = out.Render(s.runner.stderr, env, opts)
}

func (s *runtimeState) captureDiagnostics(data any, warnings []string, providers []model.ProviderStatus, partial bool) {
	s.lastData = data
	s.lastWarnings = warnings
	s.lastProviders = providers
	s.lastPartial = partial
}

func cacheKey(tool string, args map[string]string) string {
	buf, _ := json.Marshal(args)
	sum := sha256.Sum256(append([]byte(tool+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, p := range []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl || maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}
