package amount

import (
	"math/big"
	"testing"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
)

func TestParseDecimalToBaseUnits(t *testing.T) {
	got, err := Parse("1.5", 18)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.IsMax {
		t.Fatal("did not expect max sentinel")
	}
	if got.Value.String() != "1500000000000000000" {
		t.Fatalf("unexpected base units: %s", got.Value)
	}
}

func TestParseMaxSentinel(t *testing.T) {
	got, err := Parse(" MAX ", 18)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !got.IsMax || got.Value != nil {
		t.Fatalf("expected max sentinel, got %+v", got)
	}
	resolved := got.Resolve(big.NewInt(42))
	if resolved.Int64() != 42 {
		t.Fatalf("expected max to resolve to available balance, got %s", resolved)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{"", "abc", "-1", "1e18", "0", "0.000", "1.0000001"}
	for _, input := range cases {
		_, err := Parse(input, 6)
		if err == nil {
			t.Fatalf("expected error for %q", input)
		}
		if clierr.ExitCode(err) != int(clierr.CodeUsage) {
			t.Fatalf("expected usage error for %q, got %v", input, err)
		}
	}
}

func TestParseAllowsTrailingZerosBeyondDecimals(t *testing.T) {
	got, err := ParseDecimal("1.50000000", 6)
	if err != nil {
		t.Fatalf("ParseDecimal failed: %v", err)
	}
	if got.String() != "1500000" {
		t.Fatalf("unexpected base units: %s", got)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in       *big.Int
		decimals int32
		want     string
	}{
		{big.NewInt(1500000), 6, "1.5"},
		{big.NewInt(100000000), 8, "1"},
		{big.NewInt(-250), 3, "-0.25"},
		{nil, 18, "0"},
	}
	for _, tc := range cases {
		if got := Format(tc.in, tc.decimals); got != tc.want {
			t.Fatalf("Format(%v, %d) = %s, want %s", tc.in, tc.decimals, got, tc.want)
		}
	}
}

func TestMaxUint256(t *testing.T) {
	if MaxUint256.BitLen() != 256 {
		t.Fatalf("unexpected bit length: %d", MaxUint256.BitLen())
	}
}
