package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/logger"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/out"
	"github.com/spf13/cobra"
)

const (
	// serveListTools answers with the catalog instead of invoking a tool.
	serveListTools = "tools/list"
	maxRequestLine = 1 << 20
)

type serveRequest struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tool calls as JSON lines on stdin/stdout",
		Long: `Reads one request per line: {"id":"1","tool":"venus_portfolio","arguments":{"address":"0x..."}}
and writes one envelope per line, echoing the id. Mutating tools run one at a time;
read-only tools run concurrently. "tools/list" returns the catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := s.services(ctx); err != nil {
				return err
			}
			s.yieldCache(ctx)
			if metricsAddr != "" {
				stop, err := s.serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}
			return s.serve(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}

func (s *runtimeState) serve(ctx context.Context, in io.Reader) error {
	log := logger.ForComponent("serve")
	var (
		writeMu  sync.Mutex
		mutateMu sync.Mutex
		inflight sync.WaitGroup
	)
	opts := out.OptionsFrom(s.settings)
	opts.Mode = out.ModeLines
	write := func(env model.Envelope) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := out.Render(s.runner.stdout, env, opts); err != nil {
			log.Error().Err(err).Msg("write response")
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
	log.Info().Msg("serving tool calls on stdin")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req serveRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			write(s.errorEnvelope("serve", clierr.Wrap(clierr.CodeUsage, "request must be a JSON object", err), nil, nil, nil, false))
			continue
		}
		if req.Tool == serveListTools {
			env := s.listEnvelope()
			env.ID = req.ID
			write(env)
			continue
		}
		args, err := decodeArguments(req.Arguments)
		if err != nil {
			env := s.errorEnvelope(req.Tool, err, nil, nil, nil, false)
			env.ID = req.ID
			write(env)
			continue
		}

		mutating := s.isMutating(req.Tool)
		inflight.Add(1)
		run := func() {
			defer inflight.Done()
			if mutating {
				mutateMu.Lock()
				defer mutateMu.Unlock()
			}
			env := s.envelope(req.Tool, s.invoke(ctx, req.Tool, args))
			env.ID = req.ID
			write(env)
		}
		if mutating {
			// Submission order follows request order.
			run()
		} else {
			go run()
		}
	}
	inflight.Wait()
	if err := scanner.Err(); err != nil {
		return clierr.Wrap(clierr.CodeUsage, "read requests", err)
	}
	return nil
}

func (s *runtimeState) isMutating(name string) bool {
	if s.svc == nil || s.svc.catalog == nil {
		return false
	}
	tool, err := s.svc.catalog.Lookup(name)
	return err == nil && tool.Mutating
}

func (s *runtimeState) envelope(command string, o outcome) model.Envelope {
	if o.err != nil {
		return s.errorEnvelope(command, o.err, o.data, o.warnings, o.providers, o.partial)
	}
	return model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     o.data,
		Warnings: o.warnings,
		Meta:     s.meta(command, o.cache, o.providers, o.partial),
	}
}

func (s *runtimeState) listEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    s.svc.catalog.List(),
		Meta:    s.meta(serveListTools, cacheMetaBypass(), nil, false),
	}
}

func (s *runtimeState) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "listen on --metrics-addr", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log := logger.ForComponent("metrics")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
