package ballots

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Identifier keys a record within its own collection. Voter and vote identifiers are separate spaces.
type Identifier uint32

// ParseIdentifier reads a base-10 identifier.
func ParseIdentifier(s string) (Identifier, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return Identifier(id), nil
}

const (
	maxBalanceBits = 128
	// maxBalanceDigits is the decimal width of 2^128-1.
	maxBalanceDigits = 39
)

// ErrInvalidBalance is returned for amounts that are negative, fractional, or wider than 128 bits.
var ErrInvalidBalance = errors.New("balance must be a whole number between 0 and 2^128-1")

// Balance is an opaque amount held or credited for a case. It is stored and
// returned as-is; nothing in this module does arithmetic on it.
type Balance struct {
	amount decimal.Decimal
}

// NewBalance returns the balance for a whole amount.
func NewBalance(amount uint64) Balance {
	return Balance{amount: decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)}
}

// ParseBalance reads a balance from its decimal text form.
func ParseBalance(s string) (Balance, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Balance{}, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	return balanceFromDecimal(d)
}

func balanceFromDecimal(d decimal.Decimal) (Balance, error) {
	coef, exp := d.Coefficient(), int(d.Exponent())
	if coef.Sign() < 0 {
		return Balance{}, invalidBalance(coef, exp)
	}
	if coef.Sign() == 0 {
		return Balance{}, nil
	}

	// Bound the magnitude from the coefficient and exponent alone; 1e1000000 must not be expanded.
	digits := len(coef.Text(10))
	amount := coef
	switch {
	case exp > 0:
		if digits+exp > maxBalanceDigits {
			return Balance{}, invalidBalance(coef, exp)
		}
		amount = new(big.Int).Mul(coef, pow10(exp))
	case exp < 0:
		if -exp >= digits {
			return Balance{}, invalidBalance(coef, exp)
		}
		quotient, remainder := new(big.Int).QuoRem(coef, pow10(-exp), new(big.Int))
		if remainder.Sign() != 0 {
			return Balance{}, invalidBalance(coef, exp)
		}
		amount = quotient
	}
	if amount.BitLen() > maxBalanceBits {
		return Balance{}, invalidBalance(coef, exp)
	}
	return Balance{amount: decimal.NewFromBigInt(amount, 0)}, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func invalidBalance(coef *big.Int, exp int) error {
	if exp < -maxBalanceDigits || exp > maxBalanceDigits {
		return fmt.Errorf("%w: got %se%d", ErrInvalidBalance, coef, exp)
	}
	return fmt.Errorf("%w: got %s", ErrInvalidBalance, decimal.NewFromBigInt(coef, int32(exp)))
}

func (b Balance) String() string {
	return b.amount.String()
}

// Equal compares balances by value.
func (b Balance) Equal(other Balance) bool {
	return b.amount.Equal(other.amount)
}

// MarshalJSON encodes the balance as a quoted decimal string so 128-bit amounts survive JSON clients.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts quoted or bare numbers.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	parsed, err := balanceFromDecimal(d)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Voter is a party's registered stake and remaining voting credit for a case.
type Voter struct {
	CaseID     Identifier `json:"case_id"`
	Voter      string     `json:"voter"`
	AmountHold Balance    `json:"amount_hold"`
	VoteCredit Balance    `json:"vote_credit"`
}

// Equal reports whether two voters hold the same data.
func (v Voter) Equal(other Voter) bool {
	return v.CaseID == other.CaseID &&
		v.Voter == other.Voter &&
		v.AmountHold.Equal(other.AmountHold) &&
		v.VoteCredit.Equal(other.VoteCredit)
}

// Vote is one party's ballot on a piece of evidence: a yes/no credit split plus
// a reward-distribution weight. None of the weights are checked against the
// voter's credit here.
type Vote struct {
	CaseID             Identifier `json:"case_id"`
	EvidenceID         Identifier `json:"evidence_id"`
	Voter              string     `json:"voter"`
	YesCredit          uint8      `json:"yes_credit"`
	NoCredit           uint8      `json:"no_credit"`
	DistributionReward uint8      `json:"distribution_reward"`
}

// VoterEntry pairs a stored voter with its identifier.
type VoterEntry struct {
	VoterID Identifier `json:"voter_id"`
	Voter
}

// VoteEntry pairs a stored vote with its identifier.
type VoteEntry struct {
	VoteID Identifier `json:"vote_id"`
	Vote
}
