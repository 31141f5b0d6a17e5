package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/bscdefi/internal/amount"
	"github.com/ggonzalez94/bscdefi/internal/cache"
	"github.com/ggonzalez94/bscdefi/internal/config"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/ggonzalez94/bscdefi/internal/execution/orchestrator"
	"github.com/ggonzalez94/bscdefi/internal/execution/signer"
	"github.com/ggonzalez94/bscdefi/internal/httpx"
	"github.com/ggonzalez94/bscdefi/internal/ledger"
	"github.com/ggonzalez94/bscdefi/internal/logger"
	"github.com/ggonzalez94/bscdefi/internal/markets"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/portfolio"
	"github.com/ggonzalez94/bscdefi/internal/providers/defillama"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/ggonzalez94/bscdefi/internal/tools"
)

// services is everything a tool call needs, built once per process.
type services struct {
	catalog *tools.Catalog
	cache   cache.Backend
	journal *execution.Store
	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

type serviceFactory func(ctx context.Context, settings config.Settings, rec *metrics.Recorder) (*services, error)

func buildServices(ctx context.Context, settings config.Settings, rec *metrics.Recorder) (*services, error) {
	log := logger.ForComponent("app")
	svc := &services{}

	var txSigner signer.Signer
	local, signerErr := signer.NewLocalSignerFromEnv(signer.KeySourceAuto)
	if signerErr == nil {
		txSigner = local
	} else {
		log.Debug().Err(signerErr).Msg("no usable signer; mutating tools disabled")
	}

	client, err := ledger.Dial(ctx, registry.ResolveRPCURL(settings.RPCURL), txSigner, ledger.Options{
		ChainID:      settings.ChainID,
		PollInterval: settings.PollInterval,
		Logger:       logger.ForComponent("ledger"),
	})
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, client.Close)

	resolver := markets.NewResolver(client, logger.ForComponent("markets"))
	reader := portfolio.NewReader(client, resolver, portfolio.Options{Concurrency: settings.PortfolioConcurrency}, logger.ForComponent("portfolio"))
	deps := tools.Deps{
		Positions: reader,
		Yields:    defillama.New(httpx.New(settings.Timeout, settings.Retries), settings.YieldsBaseURL, rec),
		SignerErr: signerErr,
		Metrics:   rec,
	}
	if addr := os.Getenv(signer.EnvAddress); common.IsHexAddress(addr) {
		deps.Wallet = common.HexToAddress(addr)
	}

	if signerErr == nil {
		journal, err := execution.OpenStore(settings.JournalPath, settings.JournalLockPath)
		if err != nil {
			svc.Close()
			return nil, clierr.Wrap(clierr.CodeInternal, "open operation journal", err)
		}
		svc.journal = journal
		svc.closers = append(svc.closers, func() { _ = journal.Close() })

		floor, err := gweiToWei(settings.GasPriceFloorGwei)
		if err != nil {
			svc.Close()
			return nil, clierr.Wrap(clierr.CodeUsage, "gas_price_floor_gwei", err)
		}
		exec := execution.NewExecutor(client, journal, execution.Options{
			GasMultiplier:  settings.GasMultiplier,
			GasPriceFloor:  floor,
			ReceiptTimeout: settings.ReceiptTimeout,
			ChainID:        fmt.Sprintf("eip155:%d", settings.ChainID),
		}, logger.ForComponent("executor"), rec)
		deps.Operations = orchestrator.New(orchestrator.Deps{
			Executor: exec,
			Resolver: resolver,
			Logger:   logger.ForComponent("orchestrator"),
			Metrics:  rec,
		})
		deps.Wallet = local.Address()
	}

	svc.catalog = tools.NewCatalog(deps)
	return svc, nil
}

func gweiToWei(gwei float64) (*big.Int, error) {
	return amount.ParseDecimal(strconv.FormatFloat(gwei, 'f', -1, 64), 9)
}

// openCache opens the configured yield cache backend.
func openCache(ctx context.Context, settings config.Settings) (cache.Backend, error) {
	if settings.CacheBackend != config.CacheBackendRedis {
		store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	// Entries outlive their TTL by max-stale so fallback has something to serve.
	store, err := cache.OpenRedis(ctx, cache.RedisConfig{
		Address:  settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
		Retain:   settings.MaxStale,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// services builds the catalog on first use.
func (s *runtimeState) services(ctx context.Context) (*services, error) {
	if s.svc != nil && s.svc.catalog != nil {
		return s.svc, nil
	}
	svc, err := s.runner.newServices(ctx, s.settings, s.metrics)
	if err != nil {
		return nil, err
	}
	if prev := s.svc; prev != nil {
		svc.closers = append(prev.closers, svc.closers...)
		if svc.journal == nil {
			svc.journal = prev.journal
		}
	}
	s.svc = svc
	return svc, nil
}

// yieldCache returns the cache backend, or nil when caching is off or the
// backend cannot be opened. The open is attempted once per process.
func (s *runtimeState) yieldCache(ctx context.Context) cache.Backend {
	if !s.settings.CacheEnabled || s.svc == nil {
		return nil
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.svc.cache != nil || s.cacheTried {
		return s.svc.cache
	}
	s.cacheTried = true
	backend, err := s.runner.openCache(ctx, s.settings)
	if err != nil {
		log := logger.ForComponent("app")
		log.Warn().Err(err).Str("backend", s.settings.CacheBackend).Msg("cache unavailable; continuing without it")
		return nil
	}
	s.svc.cache = backend
	s.svc.closers = append(s.svc.closers, func() { _ = backend.Close() })
	return backend
}

// journal opens the operation journal for read commands that run without a signer.
func (s *runtimeState) journal() (*execution.Store, error) {
	if s.svc != nil && s.svc.journal != nil {
		return s.svc.journal, nil
	}
	store, err := execution.OpenStore(s.settings.JournalPath, s.settings.JournalLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open operation journal", err)
	}
	if s.svc == nil {
		s.svc = &services{}
	}
	s.svc.journal = store
	s.svc.closers = append(s.svc.closers, func() { _ = store.Close() })
	return store, nil
}
