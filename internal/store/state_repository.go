package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// StateRepository persists scalar market state that must survive
// restarts, such as the current royalty fee
type StateRepository struct {
	db *Database
}

// NewStateRepository creates a new StateRepository
func NewStateRepository(db *Database) *StateRepository {
	return &StateRepository{
		db: db,
	}
}

// Get retrieves a state value; ok is false when the key is not set
func (r *StateRepository) Get(key string) (string, bool, error) {
	var value string
	query := r.db.Rebind(`SELECT value FROM market_state WHERE key = ?`)

	err := r.db.GetDB().Get(&value, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set writes a state value
func (r *StateRepository) Set(key, value string) error {
	return r.db.Transaction(func(tx *sqlx.Tx) error {
		return r.SetTx(tx, key, value)
	})
}

// SetTx writes a state value within a transaction
func (r *StateRepository) SetTx(tx *sqlx.Tx, key, value string) error {
	query := tx.Rebind(`INSERT INTO market_state (key, value) VALUES (?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value`)

	_, err := tx.Exec(query, key, value)
	return err
}
