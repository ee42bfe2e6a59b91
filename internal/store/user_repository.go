package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// UserRepository handles database operations related to users
type UserRepository struct {
	db *Database
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	user := &models.User{}
	query := r.db.Rebind(`SELECT id, created_at, updated_at FROM users WHERE id = ?`)

	err := r.db.GetDB().Get(user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	// Load wallets
	wallets, err := r.GetWalletsByUserID(id)
	if err != nil {
		return nil, err
	}
	user.Wallets = wallets

	return user, nil
}

// GetByWalletAddress retrieves a user by wallet address
func (r *UserRepository) GetByWalletAddress(address string) (*models.User, error) {
	var userID string
	query := r.db.Rebind(`SELECT user_id FROM wallets WHERE address = ?`)

	err := r.db.GetDB().Get(&userID, query, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return r.GetByID(userID)
}

// Create creates a new user
func (r *UserRepository) Create() (*models.User, error) {
	id := uuid.New().String()
	now := time.Now()

	user := &models.User{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := r.db.Rebind(`INSERT INTO users (id, created_at, updated_at) VALUES (?, ?, ?)`)
	_, err := r.db.GetDB().Exec(query, user.ID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetWalletsByUserID retrieves wallets for a user
func (r *UserRepository) GetWalletsByUserID(userID string) ([]models.Wallet, error) {
	wallets := []models.Wallet{}
	query := r.db.Rebind(`SELECT id, user_id, address, type, created_at, updated_at
			  FROM wallets
			  WHERE user_id = ?`)

	err := r.db.GetDB().Select(&wallets, query, userID)
	if err != nil {
		return nil, err
	}

	return wallets, nil
}

// GetWalletByAddress retrieves a wallet by address
func (r *UserRepository) GetWalletByAddress(address string) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	query := r.db.Rebind(`SELECT id, user_id, address, type, created_at, updated_at
			  FROM wallets
			  WHERE address = ?`)

	err := r.db.GetDB().Get(wallet, query, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return wallet, nil
}

// AddWallet adds a wallet to a user
func (r *UserRepository) AddWallet(userID, address, walletType string) (*models.Wallet, error) {
	// Check if wallet already exists
	existingWallet, err := r.GetWalletByAddress(address)
	if err != nil {
		return nil, err
	}

	if existingWallet != nil {
		if existingWallet.UserID != userID {
			return nil, fmt.Errorf("wallet already linked to another user")
		}
		return existingWallet, nil
	}

	id := uuid.New().String()
	now := time.Now()

	wallet := &models.Wallet{
		ID:        id,
		UserID:    userID,
		Address:   address,
		Type:      walletType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := r.db.Rebind(`INSERT INTO wallets (id, user_id, address, type, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.GetDB().Exec(query, wallet.ID, wallet.UserID, wallet.Address, wallet.Type,
		wallet.CreatedAt, wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return wallet, nil
}
