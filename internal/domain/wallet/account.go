package wallet

import "fmt"

// AccountRef identifies an account held at a payment provider
type AccountRef struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
}

// IsValid reports whether both parts are present
func (a AccountRef) IsValid() bool {
	return a.Provider != "" && a.AccountID != ""
}

// String returns provider/account
func (a AccountRef) String() string {
	return fmt.Sprintf("%s/%s", a.Provider, a.AccountID)
}
