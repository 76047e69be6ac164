// amount.go - Strict parsing of wire amount strings.

package client

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"darkpool/internal/ledger"
)

// ParseAmount converts a wire amount string into base units. Amounts
// travel as decimal strings so callers never push them through floats;
// fractional values are rejected because the ledger counts whole base
// units only.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("%w: %s is not a whole number of base units", ledger.ErrInvalidAmount, s)
	}
	v := d.BigInt()
	if err := ledger.ValidateAmount(v); err != nil {
		return nil, err
	}
	return v, nil
}

// FormatAmount renders a base-unit amount for the wire, validating it
// on the way out so a bad value fails at the caller instead of the
// daemon.
func FormatAmount(amount *big.Int) (string, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return "", err
	}
	return amount.String(), nil
}
