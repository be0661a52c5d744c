package models

import (
	"time"
)

// OwnerType discriminates who holds an account: a registered user or a
// reserved system counterparty such as the treasury.
type OwnerType string

const (
	OwnerUser   OwnerType = "USER"
	OwnerSystem OwnerType = "SYSTEM"
)

// TransactionType tags a ledger transaction with the movement that produced it.
type TransactionType string

const (
	TransactionTopUp    TransactionType = "TOPUP"
	TransactionBonus    TransactionType = "BONUS"
	TransactionSpend    TransactionType = "SPEND"
	TransactionTransfer TransactionType = "TRANSFER"
)

// TreasurySystemName is the reserved system account holding the pool that
// funds top-ups and absorbs spends. One treasury account exists per asset.
const TreasurySystemName = "TREASURY"

// AssetType is a fungible unit of value, e.g. a game currency. Immutable
// once created; everything else references it by id.
type AssetType struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User is created outside the wallet service; the engine only reads it.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Account is the unique balance-holding entity for one (owner, asset) pair.
// Exactly one of UserID / SystemName is set, matching OwnerType.
type Account struct {
	ID          int64     `json:"id" db:"id"`
	OwnerType   OwnerType `json:"owner_type" db:"owner_type"`
	UserID      *int64    `json:"user_id,omitempty" db:"user_id"`
	SystemName  *string   `json:"system_name,omitempty" db:"system_name"`
	AssetTypeID int64     `json:"asset_type_id" db:"asset_type_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Balance holds the current amount for one account, in integer minor units.
// Never negative; mutated only by the ledger engine under a row lock.
type Balance struct {
	AccountID int64 `json:"account_id" db:"account_id"`
	Balance   int64 `json:"balance" db:"balance"`
}

// LedgerTransaction is the immutable record of one completed movement.
// IdempotencyKey is unique across all transactions and is the anchor for
// exactly-once semantics under client retries.
type LedgerTransaction struct {
	ID             string          `json:"id" db:"id"`
	Type           TransactionType `json:"type" db:"type"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	AssetTypeID    int64           `json:"asset_type_id" db:"asset_type_id"`
	Amount         int64           `json:"amount" db:"amount"`
	FromAccountID  int64           `json:"from_account_id" db:"from_account_id"`
	ToAccountID    int64           `json:"to_account_id" db:"to_account_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// LedgerEntry is one side of a transaction. Every transaction carries exactly
// two: a negative entry at the source and a positive entry at the destination,
// summing to zero.
type LedgerEntry struct {
	ID            int64     `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	AccountID     int64     `json:"account_id" db:"account_id"`
	Amount        int64     `json:"amount" db:"amount"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// AssetBalance is the projection row returned by balance queries.
type AssetBalance struct {
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}
