package execution

import "time"

type ActionStatus string

type StepStatus string

type StepType string

const (
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSimulated StepStatus = "simulated"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeApproval        StepType = "approval"
	StepTypeEnterMarket     StepType = "enter_market"
	StepTypeStake           StepType = "stake"
	StepTypeWithdrawRequest StepType = "withdraw_request"
	StepTypeClaim           StepType = "claim"
	StepTypeRestake         StepType = "restake"
	StepTypeUnrestake       StepType = "unrestake"
	StepTypeSupply          StepType = "supply"
	StepTypeBorrow          StepType = "borrow"
	StepTypeRepay           StepType = "repay"
	StepTypeRedeem          StepType = "redeem"
)

// Step is one submitted (or attempted) transaction inside an operation.
type Step struct {
	StepID      string     `json:"step_id"`
	Type        StepType   `json:"type"`
	Status      StepStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	Target      string     `json:"target"`
	Data        string     `json:"data"`
	Value       string     `json:"value"`
	GasLimit    uint64     `json:"gas_limit,omitempty"`
	GasPrice    string     `json:"gas_price,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
	BlockNumber uint64     `json:"block_number,omitempty"`
	GasUsed     uint64     `json:"gas_used,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Action is the journal record of one operation invocation.
type Action struct {
	ActionID    string         `json:"action_id"`
	IntentType  string         `json:"intent_type"`
	Status      ActionStatus   `json:"status"`
	ChainID     string         `json:"chain_id"`
	FromAddress string         `json:"from_address,omitempty"`
	Asset       string         `json:"asset,omitempty"`
	Pool        string         `json:"pool,omitempty"`
	InputAmount string         `json:"input_amount,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Steps       []Step         `json:"steps"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewAction(actionID, intentType, chainID string) Action {
	now := time.Now().UTC().Format(time.RFC3339)
	return Action{
		ActionID:   actionID,
		IntentType: intentType,
		Status:     ActionStatusRunning,
		ChainID:    chainID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Steps:      []Step{},
	}
}

func (a *Action) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Confirmed returns the steps that reached a receipt, in order.
func (a *Action) Confirmed() []Step {
	out := make([]Step, 0, len(a.Steps))
	for _, s := range a.Steps {
		if s.Status == StepStatusConfirmed {
			out = append(out, s)
		}
	}
	return out
}

func (a *Action) SetMeta(key string, value any) {
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	a.Metadata[key] = value
}
