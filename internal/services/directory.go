package services

import (
	"database/sql"
	"fmt"

	"github.com/dinowallet/backend/internal/models"
)

// AccountDirectory resolves a logical owner plus an asset to the unique
// account holding that balance. Pure lookups, no side effects, safe to call
// outside any lock; each (owner, asset) pair maps to at most one account.
type AccountDirectory struct {
	db *sql.DB
}

func NewAccountDirectory(db *sql.DB) *AccountDirectory {
	return &AccountDirectory{db: db}
}

// ownerSelector picks the account owner for one side of a movement. Exactly
// one of userID / systemName is meaningful, matching kind.
type ownerSelector struct {
	kind       models.OwnerType
	userID     int64
	systemName string
}

func userOwner(userID int64) ownerSelector {
	return ownerSelector{kind: models.OwnerUser, userID: userID}
}

func treasuryOwner() ownerSelector {
	return ownerSelector{kind: models.OwnerSystem, systemName: models.TreasurySystemName}
}

// AssetByCode returns the asset for a stable code like "GOLD".
func (d *AccountDirectory) AssetByCode(code string) (*models.AssetType, error) {
	var asset models.AssetType
	err := d.db.QueryRow(
		`SELECT id, code, name FROM asset_types WHERE code = $1`,
		code,
	).Scan(&asset.ID, &asset.Code, &asset.Name)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidAsset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset %q: %w", code, err)
	}
	return &asset, nil
}

// ResolveAccount maps an owner selector and asset to an account id.
func (d *AccountDirectory) ResolveAccount(owner ownerSelector, assetTypeID int64) (int64, error) {
	var (
		accountID int64
		err       error
	)
	if owner.kind == models.OwnerSystem {
		err = d.db.QueryRow(
			`SELECT id FROM accounts WHERE owner_type = 'SYSTEM' AND system_name = $1 AND asset_type_id = $2`,
			owner.systemName, assetTypeID,
		).Scan(&accountID)
	} else {
		err = d.db.QueryRow(
			`SELECT id FROM accounts WHERE owner_type = 'USER' AND user_id = $1 AND asset_type_id = $2`,
			owner.userID, assetTypeID,
		).Scan(&accountID)
	}
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve account: %w", err)
	}
	return accountID, nil
}
