package store

import (
	"github.com/jmoiron/sqlx"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// BalanceRepository mirrors the treasury's account balances so market
// state survives restarts
type BalanceRepository struct {
	db *Database
}

// NewBalanceRepository creates a new BalanceRepository
func NewBalanceRepository(db *Database) *BalanceRepository {
	return &BalanceRepository{
		db: db,
	}
}

// GetAll retrieves all persisted balances
func (r *BalanceRepository) GetAll() (map[models.Address]int64, error) {
	rows := []struct {
		Address models.Address `db:"address"`
		Balance int64          `db:"balance"`
	}{}
	query := r.db.Rebind(`SELECT address, balance FROM accounts`)

	if err := r.db.GetDB().Select(&rows, query); err != nil {
		return nil, err
	}

	balances := make(map[models.Address]int64, len(rows))
	for _, row := range rows {
		balances[row.Address] = row.Balance
	}
	return balances, nil
}

// UpsertTx writes one account balance within a transaction
func (r *BalanceRepository) UpsertTx(tx *sqlx.Tx, addr models.Address, balance int64) error {
	query := tx.Rebind(`INSERT INTO accounts (address, balance) VALUES (?, ?)
			  ON CONFLICT(address) DO UPDATE SET balance = excluded.balance`)

	_, err := tx.Exec(query, addr, balance)
	return err
}

// Upsert writes one account balance outside any transaction
func (r *BalanceRepository) Upsert(addr models.Address, balance int64) error {
	return r.db.Transaction(func(tx *sqlx.Tx) error {
		return r.UpsertTx(tx, addr, balance)
	})
}
