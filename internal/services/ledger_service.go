package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dinowallet/backend/internal/models"
)

// StatusCompleted is the terminal status of every committed movement,
// original or idempotent replay.
const StatusCompleted = "completed"

// LedgerService moves value between accounts: it resolves the parties,
// acquires ordered row locks, checks sufficiency, applies the balance delta,
// and records the movement as an immutable double-entry transaction — all in
// one database transaction. Top-up, spend, and transfer share the same
// protocol and differ only in how source and destination are resolved.
type LedgerService struct {
	db          *sql.DB
	directory   *AccountDirectory
	idempotency *IdempotencyLedger
}

func NewLedgerService(db *sql.DB, redisClient *redis.Client) *LedgerService {
	return &LedgerService{
		db:          db,
		directory:   NewAccountDirectory(db),
		idempotency: NewIdempotencyLedger(db, redisClient),
	}
}

// MoveResult reports the committed transaction for a movement request.
// Replayed is true when the request matched an earlier idempotency key and
// no new state was written.
type MoveResult struct {
	TransactionID string
	Status        string
	Replayed      bool
}

// moveSpec parameterizes one movement: the transaction type tag, the
// idempotency scope, and the resolution policy for each side.
type moveSpec struct {
	kind           models.TransactionType
	scopeUserID    int64
	assetCode      string
	amount         int64
	idempotencyKey string
	source         ownerSelector
	destination    ownerSelector
}

// TopUp funds a user account from the treasury pool. The treasury is a
// bounded pool, subject to the same sufficiency check as any account.
func (s *LedgerService) TopUp(ctx context.Context, userID int64, assetCode string, amount int64, idempotencyKey string) (*MoveResult, error) {
	return s.move(ctx, moveSpec{
		kind:           models.TransactionTopUp,
		scopeUserID:    userID,
		assetCode:      assetCode,
		amount:         amount,
		idempotencyKey: idempotencyKey,
		source:         treasuryOwner(),
		destination:    userOwner(userID),
	})
}

// Spend deducts from a user account into the treasury sink.
func (s *LedgerService) Spend(ctx context.Context, userID int64, assetCode string, amount int64, idempotencyKey string) (*MoveResult, error) {
	return s.move(ctx, moveSpec{
		kind:           models.TransactionSpend,
		scopeUserID:    userID,
		assetCode:      assetCode,
		amount:         amount,
		idempotencyKey: idempotencyKey,
		source:         userOwner(userID),
		destination:    treasuryOwner(),
	})
}

// Transfer moves value between two user accounts. The idempotency scope is
// the sender.
func (s *LedgerService) Transfer(ctx context.Context, fromUserID, toUserID int64, assetCode string, amount int64, idempotencyKey string) (*MoveResult, error) {
	return s.move(ctx, moveSpec{
		kind:           models.TransactionTransfer,
		scopeUserID:    fromUserID,
		assetCode:      assetCode,
		amount:         amount,
		idempotencyKey: idempotencyKey,
		source:         userOwner(fromUserID),
		destination:    userOwner(toUserID),
	})
}

func (s *LedgerService) move(ctx context.Context, spec moveSpec) (*MoveResult, error) {
	scopedKey := ScopedIdempotencyKey(spec.scopeUserID, spec.idempotencyKey)

	// Fast path: a completed transaction already exists for this key.
	// Correctness does not depend on this check — the unique constraint on
	// ledger_transactions.idempotency_key is the authoritative guard.
	if transactionID, found, err := s.idempotency.Lookup(ctx, scopedKey); err != nil {
		return nil, err
	} else if found {
		return &MoveResult{TransactionID: transactionID, Status: StatusCompleted, Replayed: true}, nil
	}

	asset, err := s.directory.AssetByCode(spec.assetCode)
	if err != nil {
		return nil, err
	}

	sourceID, err := s.directory.ResolveAccount(spec.source, asset.ID)
	if err != nil {
		return nil, err
	}
	destinationID, err := s.directory.ResolveAccount(spec.destination, asset.ID)
	if err != nil {
		return nil, err
	}
	if sourceID == destinationID {
		return nil, ErrSelfOperation
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balances, err := lockBalances(tx, sourceID, destinationID)
	if err != nil {
		return nil, err
	}
	sourceBalance, sourceOK := balances[sourceID]
	destinationBalance, destinationOK := balances[destinationID]
	if !sourceOK || !destinationOK {
		return nil, ErrBalanceRecordMissing
	}

	if sourceBalance < spec.amount {
		return nil, ErrInsufficientFunds
	}

	if err := updateBalance(tx, sourceID, sourceBalance-spec.amount); err != nil {
		return nil, err
	}
	if err := updateBalance(tx, destinationID, destinationBalance+spec.amount); err != nil {
		return nil, err
	}

	transactionID := uuid.New().String()
	_, err = tx.Exec(
		`INSERT INTO ledger_transactions (id, type, idempotency_key, asset_type_id, amount, from_account_id, to_account_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transactionID, string(spec.kind), scopedKey, asset.ID, spec.amount, sourceID, destinationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.resolveCommitRace(tx, scopedKey)
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := insertEntry(tx, transactionID, sourceID, -spec.amount); err != nil {
		return nil, err
	}
	if err := insertEntry(tx, transactionID, destinationID, spec.amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.resolveCommitRace(tx, scopedKey)
		}
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.idempotency.Remember(ctx, scopedKey, transactionID)
	log.Printf("[LEDGER] %s committed: asset=%s amount=%d from=%d to=%d tx=%s",
		spec.kind, asset.Code, spec.amount, sourceID, destinationID, transactionID)

	return &MoveResult{TransactionID: transactionID, Status: StatusCompleted}, nil
}

// resolveCommitRace handles losing the idempotency-key race to a concurrent
// identical request: roll back and return the winner's transaction as an
// idempotent replay instead of surfacing an error.
func (s *LedgerService) resolveCommitRace(tx *sql.Tx, scopedKey string) (*MoveResult, error) {
	tx.Rollback()

	var transactionID string
	err := s.db.QueryRow(
		`SELECT id FROM ledger_transactions WHERE idempotency_key = $1`,
		scopedKey,
	).Scan(&transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve idempotency conflict: %w", err)
	}
	log.Printf("[LEDGER] Idempotency conflict on %s resolved to tx=%s", scopedKey, transactionID)
	return &MoveResult{TransactionID: transactionID, Status: StatusCompleted, Replayed: true}, nil
}

// lockBalances acquires exclusive locks on the balance rows in ascending
// account-id order, regardless of which side is the logical source. The fixed
// global order means two movements touching the same pair in opposite
// directions can never wait on each other in a cycle. Returns whatever rows
// exist; the caller checks for missing ones.
func lockBalances(tx *sql.Tx, accountIDs ...int64) (map[int64]int64, error) {
	ids := make([]int64, len(accountIDs))
	copy(ids, accountIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := tx.Query(
		`SELECT account_id, balance FROM balances WHERE account_id = ANY($1) ORDER BY account_id FOR UPDATE`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[int64]int64, len(ids))
	for rows.Next() {
		var accountID, balance int64
		if err := rows.Scan(&accountID, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		balances[accountID] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balance rows: %w", err)
	}
	return balances, nil
}

func updateBalance(tx *sql.Tx, accountID, newBalance int64) error {
	_, err := tx.Exec(
		`UPDATE balances SET balance = $1 WHERE account_id = $2`,
		newBalance, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance for account %d: %w", accountID, err)
	}
	return nil
}

func insertEntry(tx *sql.Tx, transactionID string, accountID, amount int64) error {
	_, err := tx.Exec(
		`INSERT INTO ledger_entries (transaction_id, account_id, amount) VALUES ($1, $2, $3)`,
		transactionID, accountID, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
