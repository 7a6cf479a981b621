package ledger

// AccountType is the top level of the chart of accounts
type AccountType string

const (
	AccountTypeAssets      AccountType = "assets"
	AccountTypeLiabilities AccountType = "liabilities"
	AccountTypeEquities    AccountType = "equities"
	AccountTypeExpenses    AccountType = "expenses"
)

// IsValid checks if the account type is valid
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAssets, AccountTypeLiabilities, AccountTypeEquities, AccountTypeExpenses:
		return true
	}
	return false
}

// NormalSide returns the side that increases a balance of this type.
// Assets are debit-normal; every other type is credit-normal.
func (t AccountType) NormalSide() Side {
	if t == AccountTypeAssets {
		return Debit
	}
	return Credit
}

// AccountRef addresses a leaf of the three-level chart of accounts
type AccountRef struct {
	Type       AccountType
	Account    string
	SubAccount string
}

// String renders the reference as type:account:sub_account
func (r AccountRef) String() string {
	return string(r.Type) + ":" + r.Account + ":" + r.SubAccount
}

// Chart of accounts
var (
	Cash                  = AccountRef{AccountTypeAssets, "current_assets", "cash"}
	Crypto                = AccountRef{AccountTypeAssets, "current_assets", "cryptocurrencies"}
	FairValueAdjustment   = AccountRef{AccountTypeAssets, "current_assets", "crypto_fair_value_adjustment"}
	InvestedCapital       = AccountRef{AccountTypeEquities, "invested_capital", "usd_deposits"}
	WithdrawnCapital      = AccountRef{AccountTypeEquities, "withdrawn_capital", "usd_withdrawals"}
	TransfersIn           = AccountRef{AccountTypeEquities, "transfers", "transfers_in"}
	TransfersOut          = AccountRef{AccountTypeEquities, "transfers", "transfers_out"}
	Rewards               = AccountRef{AccountTypeEquities, "income", "rewards"}
	InterestEarnedAccount = AccountRef{AccountTypeEquities, "income", "interest_earned_account"}
	InterestEarnedStake   = AccountRef{AccountTypeEquities, "income", "interest_earned_stake"}
	RealizedGains         = AccountRef{AccountTypeEquities, "gains_losses", "realized_gains_losses"}
	UnrealizedGains       = AccountRef{AccountTypeEquities, "gains_losses", "unrealized_gains_losses"}
	FeesPaid              = AccountRef{AccountTypeExpenses, "fees", "fees_paid"}
)
