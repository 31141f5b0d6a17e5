package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	// ID echoes the request id of a serve-mode call.
	ID       string       `json:"id,omitempty"`
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int            `json:"code"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPartial = "partial"
)

// TokenAmount is a quantity in both base units and human decimal form.
type TokenAmount struct {
	Token     string `json:"token"`
	BaseUnits string `json:"base_units"`
	Decimal   string `json:"decimal"`
}

type TxSummary struct {
	Step        string `json:"step"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

type OperationError struct {
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Code     int            `json:"code"`
	Message  string         `json:"message"`
	Cause    string         `json:"cause,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// OperationResult is the uniform outcome of one mutating operation.
type OperationResult struct {
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	Operation       string                 `json:"operation"`
	ActionID        string                 `json:"action_id,omitempty"`
	Wallet          string                 `json:"wallet,omitempty"`
	Asset           string                 `json:"asset,omitempty"`
	Pool            string                 `json:"pool,omitempty"`
	RequestedAmount string                 `json:"requested_amount,omitempty"`
	TxHash          string                 `json:"tx_hash,omitempty"`
	BlockNumber     uint64                 `json:"block_number,omitempty"`
	GasUsed         uint64                 `json:"gas_used,omitempty"`
	Transactions    []TxSummary            `json:"transactions,omitempty"`
	Delta           *TokenAmount           `json:"delta,omitempty"`
	Balances        map[string]TokenAmount `json:"balances,omitempty"`
	FollowUp        string                 `json:"follow_up,omitempty"`
	Details         map[string]any         `json:"details,omitempty"`
	Error           *OperationError        `json:"error,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

func (r OperationResult) Succeeded() bool { return r.Status == StatusSuccess }

// WorkflowResult composes ordered operation results under step keys.
type WorkflowResult struct {
	Status     string                     `json:"status"`
	Message    string                     `json:"message"`
	Workflow   string                     `json:"workflow"`
	Steps      map[string]OperationResult `json:"steps"`
	FailedStep string                     `json:"failed_step,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type SupplyPosition struct {
	Asset            string `json:"asset"`
	VToken           string `json:"vtoken"`
	VTokenBalance    string `json:"vtoken_balance"`
	UnderlyingAmount string `json:"underlying_amount"`
}

type BorrowPosition struct {
	Asset  string `json:"asset"`
	VToken string `json:"vtoken"`
	Amount string `json:"amount"`
}

type AccountLiquidity struct {
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

// PositionSnapshot is one pool's view of an account.
type PositionSnapshot struct {
	Pool       string            `json:"pool"`
	PoolName   string            `json:"pool_name"`
	Supplies   []SupplyPosition  `json:"supplies"`
	Borrows    []BorrowPosition  `json:"borrows"`
	Liquidity  *AccountLiquidity `json:"liquidity,omitempty"`
	Unreadable []string          `json:"unreadable,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type PortfolioReport struct {
	Address string             `json:"address"`
	Pools   []PositionSnapshot `json:"pools"`
	AsOf    time.Time          `json:"as_of"`
}

type BalanceReport struct {
	Address string      `json:"address"`
	Balance TokenAmount `json:"balance"`
	AsOf    time.Time   `json:"as_of"`
}

type SlisBNBReport struct {
	Address   string       `json:"address"`
	Balance   TokenAmount  `json:"balance"`
	Shares    *TokenAmount `json:"staker_shares,omitempty"`
	PooledBNB *TokenAmount `json:"pooled_bnb,omitempty"`
	AsOf      time.Time    `json:"as_of"`
}

type AccountSummary struct {
	Address     string       `json:"address"`
	BNB         *TokenAmount `json:"bnb,omitempty"`
	SlisBNB     *TokenAmount `json:"slisbnb,omitempty"`
	KernelStake *TokenAmount `json:"kernel_staked_slisbnb,omitempty"`
	Unreadable  []string     `json:"unreadable,omitempty"`
	AsOf        time.Time    `json:"as_of"`
}

type PoolYield struct {
	Pool      string   `json:"pool"`
	PoolID    string   `json:"pool_id"`
	Protocol  string   `json:"protocol"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	APY       *float64 `json:"apy,omitempty"`
	APYBase   *float64 `json:"apy_base,omitempty"`
	APYReward *float64 `json:"apy_reward,omitempty"`
	TVLUSD    *float64 `json:"tvl_usd,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type YieldReport struct {
	Pools []PoolYield `json:"pools"`
	AsOf  time.Time   `json:"as_of"`
}
