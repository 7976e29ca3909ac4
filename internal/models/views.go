package models

// AccountView is an account plus its dashboard progress figures
type AccountView struct {
	*Account
	NextLevelXP int64   `json:"nextLevelXp"`
	Progress    float64 `json:"progress"`
}

// InitPayload is everything a client needs on first load
type InitPayload struct {
	Account     AccountView     `json:"account"`
	Tasks       []*Task         `json:"tasks"`
	Settings    *GlobalSettings `json:"settings"`
	Withdrawals []*Withdrawal   `json:"withdrawals"`
	Accounts    []*Account      `json:"accounts,omitempty"`
}

// VerificationResult reports the outcome of a membership check
type VerificationResult struct {
	Verified bool               `json:"verified"`
	Missing  []MandatoryChannel `json:"missing,omitempty"`
}

// AccountHistory is an account's read-only earning record
type AccountHistory struct {
	Claims []*TaskClaim  `json:"claims"`
	Events []LedgerEvent `json:"events"`
}
