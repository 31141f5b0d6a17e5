package execution

import (
	"strings"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

type Category string

const (
	CategoryInsufficientGasFunds Category = "insufficient_gas_funds"
	CategoryBorrowCap            Category = "borrow_cap"
	CategoryReverted             Category = "reverted"
	CategoryNonceConflict        Category = "nonce_conflict"
	CategoryTimeout              Category = "timeout"
	CategorySimulationFailed     Category = "simulation_failed"
	CategoryGuard                Category = "guard_failed"
	CategoryInvalidInput         Category = "invalid_input"
	CategoryUnsupported          Category = "unsupported"
	CategorySigner               Category = "signer"
	CategoryBlocked              Category = "blocked"
	CategoryUnavailable          Category = "unavailable"
	CategoryUnclassified         Category = "unclassified"
)

// Rule maps a predicate over the lowercased error text to a category.
type Rule struct {
	Category Category
	Message  string
	Match    func(text string) bool
}

// Contains matches when any of the substrings appears in the error text.
func Contains(substrings ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range substrings {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
}

var defaultRules = []Rule{
	{Category: CategoryInsufficientGasFunds, Message: "Insufficient BNB for gas fees", Match: Contains("insufficient funds")},
	{Category: CategoryBorrowCap, Message: "Borrow cap reached for this asset", Match: Contains("borrow cap")},
	{Category: CategoryReverted, Message: "Transaction reverted - check collateral ratio", Match: Contains("execution reverted")},
	{Category: CategoryNonceConflict, Message: "Nonce conflict with a pending transaction, retry shortly", Match: Contains("nonce too low", "replacement transaction underpriced", "already known")},
	{Category: CategoryTimeout, Message: "Timed out waiting for the network; a submitted transaction may still confirm", Match: Contains("timed out", "timeout", "deadline exceeded")},
}

type Classification struct {
	Category Category
	Message  string
	Cause    string
	Code     clierr.Code
	Details  map[string]any
}

type Classifier struct {
	rules []Rule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: append([]Rule(nil), defaultRules...)}
}

// With returns a classifier whose rules run before the existing ones.
func (c *Classifier) With(rules ...Rule) *Classifier {
	combined := make([]Rule, 0, len(rules)+len(c.rules))
	combined = append(combined, rules...)
	combined = append(combined, c.rules...)
	return &Classifier{rules: combined}
}

// Classify turns any error from an operation into a stable category. Pre-flight
// errors keep their own message; chain errors go through the ordered rules.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	text := err.Error()
	out := Classification{Cause: text, Code: clierr.CodeInternal, Message: text, Category: CategoryUnclassified}
	typed, isTyped := clierr.As(err)
	if isTyped {
		out.Code = typed.Code
		out.Message = typed.Message
		out.Details = typed.Details
		switch typed.Code {
		case clierr.CodeGuard:
			out.Category = CategoryGuard
			if cat, ok := typed.Details["category"].(string); ok && cat != "" {
				out.Category = Category(cat)
			}
			return out
		case clierr.CodeUsage:
			out.Category = CategoryInvalidInput
			return out
		case clierr.CodeUnsupported:
			out.Category = CategoryUnsupported
			return out
		case clierr.CodeSigner:
			out.Category = CategorySigner
			return out
		case clierr.CodeBlocked:
			out.Category = CategoryBlocked
			return out
		}
	}

	lowered := strings.ToLower(text)
	for _, rule := range c.rules {
		// A dry run that reverts is reported as a failed simulation.
		if isTyped && typed.Code == clierr.CodeActionSim && rule.Category == CategoryReverted {
			continue
		}
		if rule.Match != nil && rule.Match(lowered) {
			out.Category = rule.Category
			out.Message = rule.Message
			return out
		}
	}

	if isTyped {
		switch typed.Code {
		case clierr.CodeActionSim:
			out.Category = CategorySimulationFailed
		case clierr.CodeActionTimeout:
			out.Category = CategoryTimeout
		case clierr.CodeReverted:
			out.Category = CategoryReverted
		case clierr.CodeUnavailable:
			out.Category = CategoryUnavailable
			out.Message = text
		default:
			out.Message = text
		}
		return out
	}
	out.Message = text
	return out
}
