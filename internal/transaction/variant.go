package transaction

import (
	"github.com/shed3/investment-accountant/internal/ledger"
)

// Type identifies a transaction variant
type Type string

const (
	Deposit           Type = "deposit"
	Withdrawal        Type = "withdrawal"
	Buy               Type = "buy"
	Sell              Type = "sell"
	Swap              Type = "swap"
	Send              Type = "send"
	Receive           Type = "receive"
	Reward            Type = "reward"
	InterestInAccount Type = "interest-in-account"
	InterestInStake   Type = "interest-in-stake"
)

// Role names an asset leg of a transaction
type Role string

const (
	RoleBase  Role = "base"
	RoleQuote Role = "quote"
	RoleFee   Role = "fee"
)

// Roles in processing order
var Roles = []Role{RoleBase, RoleQuote, RoleFee}

// Flow is the direction a leg moves the holder's balance
type Flow int

const (
	FlowNone    Flow = 0
	FlowInflow  Flow = 1
	FlowOutflow Flow = -1
)

// Template declares one entry of a transaction. The entry's symbol,
// quantity and quote price come from the Role asset. Holding templates post
// to the asset's holding account (cash for fiat, crypto otherwise) instead
// of Account.
type Template struct {
	Side    ledger.Side
	Account ledger.AccountRef
	Holding bool
	Role    Role
}

// Variant is the accounting policy of one transaction type
type Variant interface {
	// Type returns the transaction type the variant books
	Type() Type

	// Flow returns the direction of role, or FlowNone when the variant
	// does not use it
	Flow(role Role) Flow

	// Templates returns the declarative entries of the base and quote legs
	Templates() []Template

	// TaxableRoles returns the legs whose disposal realizes a gain when the
	// leg's asset is taxable
	TaxableRoles() []Role

	// Validate checks variant specific requirements
	Validate(tx *Transaction) error
}

// policy is the table-driven Variant implementation
type policy struct {
	typ           Type
	base          Flow
	quote         Flow
	templates     []Template
	taxable       []Role
	requiresQuote bool
}

func (p policy) Type() Type { return p.typ }

func (p policy) Flow(role Role) Flow {
	switch role {
	case RoleBase:
		return p.base
	case RoleQuote:
		return p.quote
	case RoleFee:
		return FlowOutflow
	}
	return FlowNone
}

func (p policy) Templates() []Template {
	return append([]Template(nil), p.templates...)
}

func (p policy) TaxableRoles() []Role {
	return append([]Role(nil), p.taxable...)
}

func (p policy) Validate(tx *Transaction) error {
	if p.requiresQuote && !tx.Quote.IsPresent() {
		return &ParseError{TxID: tx.ID, Field: "quote", Err: ErrMissingQuote}
	}
	return nil
}

// fee templates apply to every variant
var feeTemplates = []Template{
	{Side: ledger.Debit, Account: ledger.FeesPaid, Role: RoleFee},
	{Side: ledger.Credit, Holding: true, Role: RoleFee},
}

func holding(side ledger.Side, role Role) Template {
	return Template{Side: side, Holding: true, Role: role}
}

func posting(side ledger.Side, ref ledger.AccountRef, role Role) Template {
	return Template{Side: side, Account: ref, Role: role}
}

// variants is the accounting policy table
var variants = []Variant{
	policy{
		typ:  Deposit,
		base: FlowInflow,
		templates: []Template{
			posting(ledger.Debit, ledger.Cash, RoleBase),
			posting(ledger.Credit, ledger.InvestedCapital, RoleBase),
		},
	},
	policy{
		typ:  Withdrawal,
		base: FlowOutflow,
		templates: []Template{
			posting(ledger.Debit, ledger.WithdrawnCapital, RoleBase),
			posting(ledger.Credit, ledger.Cash, RoleBase),
		},
	},
	policy{
		typ:   Buy,
		base:  FlowInflow,
		quote: FlowOutflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			holding(ledger.Credit, RoleQuote),
		},
		requiresQuote: true,
	},
	policy{
		typ:   Sell,
		base:  FlowOutflow,
		quote: FlowInflow,
		templates: []Template{
			holding(ledger.Debit, RoleQuote),
			holding(ledger.Credit, RoleBase),
		},
		taxable:       []Role{RoleBase},
		requiresQuote: true,
	},
	policy{
		typ:   Swap,
		base:  FlowInflow,
		quote: FlowOutflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			holding(ledger.Credit, RoleQuote),
		},
		taxable:       []Role{RoleQuote},
		requiresQuote: true,
	},
	policy{
		typ:  Send,
		base: FlowOutflow,
		templates: []Template{
			posting(ledger.Debit, ledger.TransfersOut, RoleBase),
			holding(ledger.Credit, RoleBase),
		},
	},
	policy{
		typ:  Receive,
		base: FlowInflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			posting(ledger.Credit, ledger.TransfersIn, RoleBase),
		},
	},
	policy{
		typ:  Reward,
		base: FlowInflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			posting(ledger.Credit, ledger.Rewards, RoleBase),
		},
	},
	policy{
		typ:  InterestInAccount,
		base: FlowInflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			posting(ledger.Credit, ledger.InterestEarnedAccount, RoleBase),
		},
	},
	policy{
		typ:  InterestInStake,
		base: FlowInflow,
		templates: []Template{
			holding(ledger.Debit, RoleBase),
			posting(ledger.Credit, ledger.InterestEarnedStake, RoleBase),
		},
	},
}
