// Package defillama reads pool APY history from the DefiLlama yields API.
package defillama

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/httpx"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultYieldsBase = "https://yields.llama.fi"
	ProviderName      = "defillama"

	// AllPools selects every tracked pool.
	AllPools = "all"
)

type Client struct {
	http       *httpx.Client
	yieldsBase string
	metrics    *metrics.Recorder
	now        func() time.Time
}

func New(httpClient *httpx.Client, yieldsBase string, rec *metrics.Recorder) *Client {
	yieldsBase = strings.TrimRight(strings.TrimSpace(yieldsBase), "/")
	if yieldsBase == "" {
		yieldsBase = DefaultYieldsBase
	}
	return &Client{http: httpClient, yieldsBase: yieldsBase, metrics: rec, now: time.Now}
}

// ChartPoint is one sample of a pool's history. Any figure may be missing.
type ChartPoint struct {
	Timestamp string   `json:"timestamp"`
	TVLUSD    *float64 `json:"tvlUsd"`
	APY       *float64 `json:"apy"`
	APYBase   *float64 `json:"apyBase"`
	APYReward *float64 `json:"apyReward"`
}

type chartResp struct {
	Status string       `json:"status"`
	Data   []ChartPoint `json:"data"`
}

// Latest returns the most recent sample of a pool's chart.
func (c *Client) Latest(ctx context.Context, poolID string) (ChartPoint, error) {
	var resp chartResp
	if err := c.http.GetJSON(ctx, c.yieldsBase+"/chart/"+poolID, &resp); err != nil {
		return ChartPoint{}, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return ChartPoint{}, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("yields API returned status %q", resp.Status))
	}
	if len(resp.Data) == 0 {
		return ChartPoint{}, clierr.New(clierr.CodeUnavailable, "no APY data returned for pool")
	}
	return resp.Data[len(resp.Data)-1], nil
}

// SelectPools maps "all" or a single pool key to the tracked pools.
func SelectPools(key string) ([]registry.YieldPool, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.EqualFold(key, AllPools) {
		return registry.YieldPools(), nil
	}
	pool, ok := registry.LookupYieldPool(key)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported pool %q", key)).
			WithDetails(map[string]any{"supported": append([]string{AllPools}, registry.YieldPoolKeys()...)})
	}
	return []registry.YieldPool{pool}, nil
}

// Yields fetches the latest APY for every selected pool concurrently. A pool
// that fails is reported with status "error"; the call itself fails only
// when every pool failed for a provider-side reason.
func (c *Client) Yields(ctx context.Context, key string) (model.YieldReport, []model.ProviderStatus, error) {
	pools, err := SelectPools(key)
	if err != nil {
		return model.YieldReport{}, nil, err
	}
	started := c.now()
	items := make([]model.PoolYield, len(pools))
	errs := make([]error, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pool := range pools {
		g.Go(func() error {
			item := model.PoolYield{Pool: pool.Key, PoolID: pool.PoolID, Protocol: pool.Protocol, Type: pool.Type}
			point, err := c.Latest(gctx, pool.PoolID)
			if err != nil {
				c.metrics.YieldError()
				item.Status = "error"
				item.Error = err.Error()
				errs[i] = err
			} else {
				item.Status = "ok"
				item.APY = point.APY
				item.APYBase = point.APYBase
				item.APYReward = point.APYReward
				item.TVLUSD = point.TVLUSD
				item.Timestamp = point.Timestamp
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	status := model.ProviderStatus{Name: ProviderName, Status: "ok", LatencyMS: c.now().Sub(started).Milliseconds()}
	failed := 0
	var last error
	for _, err := range errs {
		if err != nil {
			failed++
			last = err
		}
	}
	report := model.YieldReport{Pools: items, AsOf: c.now().UTC()}
	switch {
	case failed == len(pools):
		status.Status = "unavailable"
		return report, []model.ProviderStatus{status}, last
	case failed > 0:
		status.Status = "partial"
	}
	return report, []model.ProviderStatus{status}, nil
}
