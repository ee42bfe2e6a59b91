package store

import (
	"github.com/jmoiron/sqlx"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// ItemRepository handles database operations related to market items
type ItemRepository struct {
	db *Database
}

// NewItemRepository creates a new ItemRepository
func NewItemRepository(db *Database) *ItemRepository {
	return &ItemRepository{
		db: db,
	}
}

// Count returns the number of persisted catalogue rows
func (r *ItemRepository) Count() (int, error) {
	var count int
	query := r.db.Rebind(`SELECT COUNT(*) FROM market_items`)

	if err := r.db.GetDB().Get(&count, query); err != nil {
		return 0, err
	}
	return count, nil
}

// GetAll retrieves the full catalogue in ascending token order
func (r *ItemRepository) GetAll() ([]models.MarketItem, error) {
	items := []models.MarketItem{}
	query := r.db.Rebind(`SELECT token_id, seller, price, owner
			  FROM market_items ORDER BY token_id`)

	if err := r.db.GetDB().Select(&items, query); err != nil {
		return nil, err
	}
	return items, nil
}

// Seed bulk-inserts the catalogue at first boot, inside one transaction
func (r *ItemRepository) Seed(items []models.MarketItem) error {
	return r.db.Transaction(func(tx *sqlx.Tx) error {
		query := tx.Rebind(`INSERT INTO market_items (token_id, seller, price, owner)
				  VALUES (?, ?, ?, ?)`)
		for _, item := range items {
			if _, err := tx.Exec(query, item.TokenID, item.Seller, item.Price, item.Owner); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertTx writes one catalogue row within a transaction
func (r *ItemRepository) UpsertTx(tx *sqlx.Tx, item models.MarketItem) error {
	query := tx.Rebind(`INSERT INTO market_items (token_id, seller, price, owner)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(token_id) DO UPDATE SET
				seller = excluded.seller,
				price = excluded.price,
				owner = excluded.owner`)

	_, err := tx.Exec(query, item.TokenID, item.Seller, item.Price, item.Owner)
	return err
}
