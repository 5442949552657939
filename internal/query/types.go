package query

import "github.com/google/uuid"

// BalanceEntry is one projected payout balance. Amounts are decimal strings
// in token base units.
type BalanceEntry struct {
	AccountPath  string `json:"account_path"`
	Program      string `json:"program"`
	Balance      string `json:"balance"`
	LastSequence int64  `json:"last_sequence"`
}

// AccountBalances is everything paid out to one account, per program.
type AccountBalances struct {
	Account      uuid.UUID      `json:"account"`
	Balances     []BalanceEntry `json:"balances"`
	AsOfSequence int64          `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Program       string `json:"program"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
	Unit          int64  `json:"unit"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy          bool                `json:"is_healthy"`
	HashChainBreaks    []int64             `json:"hash_chain_breaks,omitempty"`
	UnbalancedPrograms []UnbalancedProgram `json:"unbalanced_programs,omitempty"`
}

// UnbalancedProgram is a program whose projected balances do not sum to zero.
type UnbalancedProgram struct {
	Program   string `json:"program"`
	Imbalance string `json:"imbalance"`
}
