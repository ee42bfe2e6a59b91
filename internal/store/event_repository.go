package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// EventRepository handles database operations related to the market
// event journal
type EventRepository struct {
	db *Database
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *Database) *EventRepository {
	return &EventRepository{
		db: db,
	}
}

// InsertTx appends an event to the journal within a transaction. The
// event's ID and CreatedAt are assigned here.
func (r *EventRepository) InsertTx(tx *sqlx.Tx, event *models.MarketEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = time.Now()

	query := tx.Rebind(`INSERT INTO market_events (id, type, token_id, seller, buyer, price, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := tx.Exec(query, event.ID, event.Type, event.TokenID,
		event.Seller, event.Buyer, event.Price, event.CreatedAt)
	return err
}

// ListRecent retrieves the newest events, newest first
func (r *EventRepository) ListRecent(limit int) ([]models.MarketEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	events := []models.MarketEvent{}
	query := r.db.Rebind(`SELECT id, type, token_id, seller, buyer, price, created_at
			  FROM market_events ORDER BY created_at DESC LIMIT ?`)

	if err := r.db.GetDB().Select(&events, query, limit); err != nil {
		return nil, err
	}
	return events, nil
}

// ListByToken retrieves the full history of one token, oldest first
func (r *EventRepository) ListByToken(tokenID int64) ([]models.MarketEvent, error) {
	events := []models.MarketEvent{}
	query := r.db.Rebind(`SELECT id, type, token_id, seller, buyer, price, created_at
			  FROM market_events WHERE token_id = ? ORDER BY created_at`)

	if err := r.db.GetDB().Select(&events, query, tokenID); err != nil {
		return nil, err
	}
	return events, nil
}
