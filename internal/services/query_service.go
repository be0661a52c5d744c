package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/dinowallet/backend/internal/models"
)

// QueryService serves the read-only projections: per-user balances, per-user
// transaction history, and the treasury position. Plain reads, no locks.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

type UserBalancesResponse struct {
	UserID   int64                 `json:"userId"`
	Balances []models.AssetBalance `json:"balances"`
}

type TransactionDetail struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	AssetCode string `json:"assetCode"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

type TransactionHistoryResponse struct {
	UserID       int64               `json:"userId"`
	Transactions []TransactionDetail `json:"transactions"`
}

type TreasuryBalancesResponse struct {
	SystemName string                `json:"systemName"`
	Balances   []models.AssetBalance `json:"balances"`
}

// UserBalances handles GET /v1/users/{userId}/balances. Every known asset is
// listed; assets the user holds no account for report a balance of 0.
func (qs *QueryService) UserBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := qs.requireUser(w, r)
	if !ok {
		return
	}

	rows, err := qs.db.Query(`SELECT code FROM asset_types ORDER BY id`)
	if err != nil {
		sendQueryError(w, err)
		return
	}
	defer rows.Close()

	var assetCodes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			sendQueryError(w, err)
			return
		}
		assetCodes = append(assetCodes, code)
	}
	if err := rows.Err(); err != nil {
		sendQueryError(w, err)
		return
	}

	held, err := qs.db.Query(
		`SELECT at.code, b.balance
		 FROM balances b
		 JOIN accounts a ON a.id = b.account_id
		 JOIN asset_types at ON at.id = a.asset_type_id
		 WHERE a.user_id = $1`,
		userID,
	)
	if err != nil {
		sendQueryError(w, err)
		return
	}
	defer held.Close()

	balanceByCode := make(map[string]int64)
	for held.Next() {
		var code string
		var balance int64
		if err := held.Scan(&code, &balance); err != nil {
			sendQueryError(w, err)
			return
		}
		balanceByCode[code] = balance
	}
	if err := held.Err(); err != nil {
		sendQueryError(w, err)
		return
	}

	balances := make([]models.AssetBalance, 0, len(assetCodes))
	for _, code := range assetCodes {
		balances = append(balances, models.AssetBalance{Asset: code, Balance: balanceByCode[code]})
	}

	sendJSON(w, UserBalancesResponse{UserID: userID, Balances: balances})
}

// UserTransactions handles GET /v1/users/{userId}/transactions: every
// movement touching any of the user's accounts, newest first. The type tag is
// always the canonical stored value, e.g. "TOPUP".
func (qs *QueryService) UserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := qs.requireUser(w, r)
	if !ok {
		return
	}

	rows, err := qs.db.Query(`SELECT id FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		sendQueryError(w, err)
		return
	}
	defer rows.Close()

	var accountIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			sendQueryError(w, err)
			return
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		sendQueryError(w, err)
		return
	}

	transactions := []TransactionDetail{}
	if len(accountIDs) > 0 {
		txRows, err := qs.db.Query(
			`SELECT t.id, t.type, at.code, t.amount, t.created_at
			 FROM ledger_transactions t
			 JOIN asset_types at ON at.id = t.asset_type_id
			 WHERE t.from_account_id = ANY($1) OR t.to_account_id = ANY($1)
			 ORDER BY t.created_at DESC`,
			pq.Array(accountIDs),
		)
		if err != nil {
			sendQueryError(w, err)
			return
		}
		defer txRows.Close()

		for txRows.Next() {
			var detail TransactionDetail
			var createdAt time.Time
			if err := txRows.Scan(&detail.ID, &detail.Type, &detail.AssetCode, &detail.Amount, &createdAt); err != nil {
				sendQueryError(w, err)
				return
			}
			detail.Status = StatusCompleted
			detail.CreatedAt = createdAt.Format(time.RFC3339)
			transactions = append(transactions, detail)
		}
		if err := txRows.Err(); err != nil {
			sendQueryError(w, err)
			return
		}
	}

	sendJSON(w, TransactionHistoryResponse{UserID: userID, Transactions: transactions})
}

// TreasuryBalances handles GET /v1/treasury/balances.
func (qs *QueryService) TreasuryBalances(w http.ResponseWriter, r *http.Request) {
	rows, err := qs.db.Query(
		`SELECT at.code, b.balance
		 FROM balances b
		 JOIN accounts a ON a.id = b.account_id
		 JOIN asset_types at ON at.id = a.asset_type_id
		 WHERE a.system_name = $1
		 ORDER BY at.code`,
		models.TreasurySystemName,
	)
	if err != nil {
		sendQueryError(w, err)
		return
	}
	defer rows.Close()

	balances := []models.AssetBalance{}
	for rows.Next() {
		var ab models.AssetBalance
		if err := rows.Scan(&ab.Asset, &ab.Balance); err != nil {
			sendQueryError(w, err)
			return
		}
		balances = append(balances, ab)
	}
	if err := rows.Err(); err != nil {
		sendQueryError(w, err)
		return
	}

	sendJSON(w, TreasuryBalancesResponse{SystemName: models.TreasurySystemName, Balances: balances})
}

// requireUser parses {userId} and verifies the user exists.
func (qs *QueryService) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		SendErrorResponse(w, "Invalid user id", http.StatusBadRequest, nil)
		return 0, false
	}

	var id int64
	err = qs.db.QueryRow(`SELECT id FROM users WHERE id = $1`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return 0, false
	}
	if err != nil {
		sendQueryError(w, err)
		return 0, false
	}
	return userID, true
}

func sendJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func sendQueryError(w http.ResponseWriter, err error) {
	log.Printf("[QUERY] Projection query failed: %v", err)
	SendErrorResponse(w, "Query failed", http.StatusInternalServerError, nil)
}
