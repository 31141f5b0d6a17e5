package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/registry"
)

// Parsed ABIs shared by every caller.
var (
	ERC20ABI        = MustParseABI(registry.ERC20ABI)
	VTokenABI       = MustParseABI(registry.VTokenABI)
	ComptrollerABI  = MustParseABI(registry.ComptrollerABI)
	StakeManagerABI = MustParseABI(registry.StakeManagerABI)
	KernelABI       = MustParseABI(registry.KernelStakerABI)
)

func MustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Contract pairs an address with its ABI.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
	Name    string
}

func Bind(name string, address common.Address, parsed abi.ABI) Contract {
	return Contract{Address: address, ABI: parsed, Name: name}
}

func (c Contract) Pack(method string, args ...any) ([]byte, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s.%s calldata", c.label(), method), err)
	}
	return data, nil
}

// Call runs a view method and returns its decoded outputs.
func (c Contract) Call(ctx context.Context, r Reader, from common.Address, method string, args ...any) ([]any, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := r.CallContract(ctx, CallMsg{From: from, To: c.Address, Data: data})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("call %s.%s", c.label(), method), withRevertReason(err))
	}
	decoded, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s.%s", c.label(), method), err)
	}
	return decoded, nil
}

func (c Contract) CallBig(ctx context.Context, r Reader, from common.Address, method string, args ...any) (*big.Int, error) {
	out, err := c.Call(ctx, r, from, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("empty %s.%s response", c.label(), method))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s.%s response type %T", c.label(), method, out[0]))
	}
	return v, nil
}

func (c Contract) CallAddresses(ctx context.Context, r Reader, from common.Address, method string, args ...any) ([]common.Address, error) {
	out, err := c.Call(ctx, r, from, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	switch v := out[0].(type) {
	case []common.Address:
		return v, nil
	case common.Address:
		return []common.Address{v}, nil
	default:
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s.%s response type %T", c.label(), method, out[0]))
	}
}

func (c Contract) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Address.Hex()
}
