package tools

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/model"
	"github.com/ggonzalez94/bscdefi/internal/registry"
	"github.com/ggonzalez94/bscdefi/internal/schema"
)

const YieldCacheTTL = 5 * time.Minute

func str(desc string) schema.Property { return schema.Property{Type: "string", Description: desc} }

func definitions(d Deps) []Tool {
	address := str("Account to inspect (0x...). Defaults to the configured wallet.")
	assets := "Asset symbol: " + strings.Join(registry.AssetSymbols(), ", ")
	pool := str("Venus pool: core or liquid. Defaults to the pool that lists the asset.")
	readAddr := schema.Object(nil, map[string]schema.Property{"address": address})

	return []Tool{
		{
			Name:        "get_apy",
			Description: "Latest APY and TVL of the tracked Lista and Venus pools from DefiLlama.",
			Input: schema.Object(nil, map[string]schema.Property{
				"pool": {Type: "string", Description: "Pool key or all", Enum: append([]string{"all"}, registry.YieldPoolKeys()...), Default: "all"},
			}),
			CacheTTL: YieldCacheTTL,
			Handler:  d.getAPY,
		},
		{
			Name:        "bnb_balance",
			Description: "Native BNB balance of an account.",
			Input:       readAddr,
			Handler: d.read(func(ctx context.Context, owner common.Address) (any, error) {
				return d.Positions.NativeBalance(ctx, owner)
			}),
		},
		{
			Name:        "slisbnb_balance",
			Description: "slisBNB balance with Lista staker shares and their pooled BNB value.",
			Input:       readAddr,
			Handler: d.read(func(ctx context.Context, owner common.Address) (any, error) {
				return d.Positions.SlisBNB(ctx, owner)
			}),
		},
		{
			Name:        "kernel_balance",
			Description: "slisBNB restaked on KernelDAO.",
			Input:       readAddr,
			Handler: d.read(func(ctx context.Context, owner common.Address) (any, error) {
				return d.Positions.KernelStake(ctx, owner)
			}),
		},
		{
			Name:        "venus_portfolio",
			Description: "Venus supplies, borrows and account liquidity across the core and liquid pools.",
			Input:       readAddr,
			Handler: d.read(func(ctx context.Context, owner common.Address) (any, error) {
				return d.Positions.Venus(ctx, owner), nil
			}),
		},
		{
			Name:        "account_summary",
			Description: "BNB, slisBNB and KernelDAO balances in one call.",
			Input:       readAddr,
			Handler: d.read(func(ctx context.Context, owner common.Address) (any, error) {
				return d.Positions.Summary(ctx, owner), nil
			}),
		},
		{
			Name:        "lista_stake",
			Description: "Stake BNB on Lista DAO and receive slisBNB.",
			Mutating:    true,
			Input:       schema.Object([]string{"amount"}, map[string]schema.Property{"amount": str("BNB to stake, e.g. 0.1")}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Stake(ctx, a["amount"])
			}),
		},
		{
			Name:        "lista_unstake",
			Description: "Request a slisBNB withdrawal from Lista DAO and try to claim matured requests.",
			Mutating:    true,
			Input:       schema.Object([]string{"amount"}, map[string]schema.Property{"amount": str("slisBNB to unstake, or max")}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Unstake(ctx, a["amount"])
			}),
		},
		{
			Name:        "kernel_stake",
			Description: "Restake slisBNB on KernelDAO.",
			Mutating:    true,
			Input:       schema.Object(nil, map[string]schema.Property{"amount": str("slisBNB to restake. Defaults to the whole balance.")}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Restake(ctx, a["amount"])
			}),
		},
		{
			Name:        "kernel_unstake",
			Description: "Unstake slisBNB from KernelDAO.",
			Mutating:    true,
			Input:       schema.Object([]string{"amount"}, map[string]schema.Property{"amount": str("slisBNB to unstake, or max")}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Unrestake(ctx, a["amount"])
			}),
		},
		{
			Name:        "stake_and_restake",
			Description: "Stake BNB on Lista DAO, then restake exactly the slisBNB received on KernelDAO.",
			Mutating:    true,
			Input:       schema.Object([]string{"amount"}, map[string]schema.Property{"amount": str("BNB to stake")}),
			Handler:     d.stakeAndRestake,
		},
		{
			Name:        "venus_lend",
			Description: "Supply an asset to Venus.",
			Mutating:    true,
			Input: schema.Object([]string{"asset", "amount"}, map[string]schema.Property{
				"asset": str(assets), "amount": str("Amount to supply"), "pool": pool,
			}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Lend(ctx, a["asset"], a["amount"], a["pool"])
			}),
		},
		{
			Name:        "venus_borrow",
			Description: "Borrow an asset from Venus against supplied collateral.",
			Mutating:    true,
			Input: schema.Object([]string{"asset", "amount"}, map[string]schema.Property{
				"asset": str(assets), "amount": str("Amount to borrow"), "pool": pool,
				"collateral": str("Collateral market to enter first. Defaults to the borrowed asset."),
			}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Borrow(ctx, a["asset"], a["amount"], a["pool"], a["collateral"])
			}),
		},
		{
			Name:        "venus_repay",
			Description: "Repay a Venus borrow.",
			Mutating:    true,
			Input: schema.Object([]string{"asset", "amount"}, map[string]schema.Property{
				"asset": str(assets), "amount": str("Amount to repay, or max for the full debt"), "pool": pool,
			}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Repay(ctx, a["asset"], a["amount"], a["pool"])
			}),
		},
		{
			Name:        "venus_withdraw",
			Description: "Withdraw supplied assets from Venus.",
			Mutating:    true,
			Input: schema.Object([]string{"asset", "amount"}, map[string]schema.Property{
				"asset": str(assets), "amount": str("Amount to withdraw, or max for the whole supply"), "pool": pool,
			}),
			Handler: d.operation(func(ctx context.Context, ops Operations, a map[string]string) model.OperationResult {
				return ops.Withdraw(ctx, a["asset"], a["amount"], a["pool"])
			}),
		},
	}
}

func (d Deps) getAPY(ctx context.Context, args map[string]string) (Result, error) {
	report, providers, err := d.Yields.Yields(ctx, args["pool"])
	if err != nil {
		return Result{Providers: providers}, err
	}
	res := Result{Data: report, Providers: providers}
	for _, p := range report.Pools {
		if p.Status != "ok" {
			res.Partial = true
			res.Warnings = append(res.Warnings, p.Pool+": "+p.Error)
		}
	}
	return res, nil
}

func (d Deps) read(fn func(ctx context.Context, owner common.Address) (any, error)) Handler {
	return func(ctx context.Context, args map[string]string) (Result, error) {
		owner, err := d.owner(args["address"])
		if err != nil {
			return Result{}, err
		}
		data, err := fn(ctx, owner)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data}, nil
	}
}

func (d Deps) owner(raw string) (common.Address, error) {
	if raw == "" {
		if d.Wallet == (common.Address{}) {
			return common.Address{}, clierr.New(clierr.CodeUsage, "address is required when no wallet is configured")
		}
		return d.Wallet, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, clierr.New(clierr.CodeUsage, "invalid address "+raw)
	}
	return common.HexToAddress(raw), nil
}

func (d Deps) operations() (Operations, error) {
	if d.Operations != nil {
		return d.Operations, nil
	}
	if d.SignerErr != nil {
		return nil, d.SignerErr
	}
	return nil, clierr.New(clierr.CodeSigner, "no signer configured; mutating tools are disabled")
}

func (d Deps) operation(fn func(ctx context.Context, ops Operations, args map[string]string) model.OperationResult) Handler {
	return func(ctx context.Context, args map[string]string) (Result, error) {
		ops, err := d.operations()
		if err != nil {
			return Result{}, err
		}
		res := fn(ctx, ops, args)
		return Result{Data: res}, OperationError(res.Error)
	}
}

func (d Deps) stakeAndRestake(ctx context.Context, args map[string]string) (Result, error) {
	ops, err := d.operations()
	if err != nil {
		return Result{}, err
	}
	wf := ops.StakeAndRestake(ctx, args["amount"])
	res := Result{Data: wf, Partial: wf.Status == model.StatusPartial}
	if wf.Status == model.StatusSuccess {
		return res, nil
	}
	if step, ok := wf.Steps[wf.FailedStep]; ok && step.Error != nil {
		return res, OperationError(step.Error)
	}
	return res, clierr.New(clierr.CodeInternal, wf.Message)
}

// OperationError lifts a failed result's error into a typed error so the
// envelope carries the same code and type. Nil in, nil out.
func OperationError(e *model.OperationError) error {
	if e == nil {
		return nil
	}
	details := map[string]any{"category": e.Category}
	for k, v := range e.Details {
		details[k] = v
	}
	code := clierr.Code(e.Code)
	if code == clierr.CodeSuccess {
		code = clierr.CodeInternal
	}
	return clierr.New(code, e.Message).WithDetails(details)
}
