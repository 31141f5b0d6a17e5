// Package tools is the catalog of remotely invocable operations: names,
// descriptions, declared inputs, the mutating flag and the handler behind each.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/metrics"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/schema"
)

// Result is what a handler hands back to the transport.
type Result struct {
	Data      any
	Providers []model.ProviderStatus
	Warnings  []string
	Partial   bool
}

type Handler func(ctx context.Context, args map[string]string) (Result, error)

type Tool struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Mutating    bool         `json:"mutating"`
	Input       schema.Input `json:"input_schema"`
	// CacheTTL > 0 lets the transport serve cached results.
	CacheTTL time.Duration `json:"-"`
	Handler  Handler       `json:"-"`
}

// Operations is the mutating surface, satisfied by the orchestrator.
type Operations interface {
	Stake(ctx context.Context, amountBNB string) model.OperationResult
	Unstake(ctx context.Context, amountSlis string) model.OperationResult
	Restake(ctx context.Context, amountSlis string) model.OperationResult
	Unrestake(ctx context.Context, amountSlis string) model.OperationResult
	StakeAndRestake(ctx context.Context, amountBNB string) model.WorkflowResult
	Lend(ctx context.Context, asset, amount, pool string) model.OperationResult
	Borrow(ctx context.Context, asset, amount, pool, collateral string) model.OperationResult
	Repay(ctx context.Context, asset, amount, pool string) model.OperationResult
	Withdraw(ctx context.Context, asset, amount, pool string) model.OperationResult
}

// Positions is the read-only chain surface, satisfied by the portfolio reader.
type Positions interface {
	NativeBalance(ctx context.Context, owner common.Address) (model.BalanceReport, error)
	SlisBNB(ctx context.Context, owner common.Address) (model.SlisBNBReport, error)
	KernelStake(ctx context.Context, owner common.Address) (model.BalanceReport, error)
	Summary(ctx context.Context, owner common.Address) model.AccountSummary
	Venus(ctx context.Context, owner common.Address) model.PortfolioReport
}

type Yields interface {
	Yields(ctx context.Context, pool string) (model.YieldReport, []model.ProviderStatus, error)
}

type Deps struct {
	// Operations is nil when no signer is configured; SignerErr then says why.
	Operations Operations
	SignerErr  error
	Positions  Positions
	Yields     Yields
	// Wallet is the default address for read tools. Zero means none.
	Wallet  common.Address
	Metrics *metrics.Recorder
}

type Catalog struct {
	tools   []Tool
	byName  map[string]int
	metrics *metrics.Recorder
}

func NewCatalog(d Deps) *Catalog {
	c := &Catalog{byName: map[string]int{}, metrics: d.Metrics}
	for _, t := range definitions(d) {
		c.byName[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c
}

// List returns the tools sorted by name.
func (c *Catalog) List() []Tool {
	out := append([]Tool(nil), c.tools...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Lookup(name string) (Tool, error) {
	i, ok := c.byName[name]
	if !ok {
		names := make([]string, 0, len(c.tools))
		for _, t := range c.List() {
			names = append(names, t.Name)
		}
		return Tool{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown tool %q", name)).
			WithDetails(map[string]any{"available": names})
	}
	return c.tools[i], nil
}

// Call validates args against the tool's input schema and runs it.
func (c *Catalog) Call(ctx context.Context, tool Tool, args map[string]string) (Result, error) {
	normalized, err := tool.Input.Apply(args)
	if err != nil {
		c.metrics.ToolCall(tool.Name, "invalid")
		return Result{}, err
	}
	res, err := tool.Handler(ctx, normalized)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ToolCall(tool.Name, outcome)
	return res, err
}
