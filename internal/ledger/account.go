package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeRewardsPaid AccountSubType = iota
	SubTypeFeesReceived

	// System sub-types
	SubTypeEmissionReserve
	SubTypeFeesBurned
)

// Program names the ledger a payout was drawn from ("v1", "v2", "staking",
// "vesting-v1", ...). Balances never mix across programs.
type Program string

// AccountKey is the in-memory key for payout balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // account UUID for users, zero for system accounts
	SubType  AccountSubType
	Program  Program
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, program Program) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		Program:  program,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType, program Program) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		Program: program,
	}
}

// ReserveAccount is the emission reserve every payout of a program draws on.
func ReserveAccount(program Program) AccountKey {
	return NewSystemAccountKey(SubTypeEmissionReserve, program)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), k.Program)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), k.Program)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeRewardsPaid:
		return "rewards_paid"
	case SubTypeFeesReceived:
		return "fees_received"
	case SubTypeEmissionReserve:
		return "emission_reserve"
	case SubTypeFeesBurned:
		return "fees_burned"
	default:
		return "unknown"
	}
}
