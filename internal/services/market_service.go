package services

import (
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/mintfolio/mintfolio-api/internal/config"
	"github.com/mintfolio/mintfolio-api/internal/market"
	"github.com/mintfolio/mintfolio-api/internal/models"
	"github.com/mintfolio/mintfolio-api/internal/store"
)

const royaltyFeeKey = "royalty_fee"

// Notifier receives every committed market event. The WebSocket hub
// implements it.
type Notifier interface {
	NotifyEvent(event models.MarketEvent)
}

// MarketService runs market operations against the ledger and persists
// each committed transition. The ledger is the authority; the database
// is its durable mirror.
type MarketService struct {
	ledger      *market.Ledger
	db          *store.Database
	itemRepo    *store.ItemRepository
	eventRepo   *store.EventRepository
	balanceRepo *store.BalanceRepository
	stateRepo   *store.StateRepository
	faucet      bool
	notifier    Notifier
	log         *logrus.Logger
}

// NewMarketService deploys the market on first boot (seeding the
// database from config) or restores it from persisted state on
// subsequent boots.
func NewMarketService(cfg config.MarketConfig, db *store.Database, log *logrus.Logger) (*MarketService, error) {
	s := &MarketService{
		db:          db,
		itemRepo:    store.NewItemRepository(db),
		eventRepo:   store.NewEventRepository(db),
		balanceRepo: store.NewBalanceRepository(db),
		stateRepo:   store.NewStateRepository(db),
		faucet:      cfg.Faucet,
		log:         log,
	}

	ledgerCfg := market.Config{
		RoyaltyFee:      cfg.RoyaltyFee,
		Artist:          models.Address(cfg.Artist),
		Deployer:        models.Address(cfg.Deployer),
		Deposit:         cfg.Deposit,
		Prices:          cfg.Prices,
		MetadataBaseURI: cfg.MetadataBaseURI,
	}

	count, err := s.itemRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	if count == 0 {
		ledger, err := market.New(ledgerCfg)
		if err != nil {
			return nil, err
		}
		if err := s.seed(ledger); err != nil {
			return nil, fmt.Errorf("failed to seed market state: %w", err)
		}
		log.WithFields(logrus.Fields{
			"size":    ledger.Size(),
			"artist":  cfg.Artist,
			"royalty": cfg.RoyaltyFee,
		}).Info("market deployed")
		s.ledger = ledger
		return s, nil
	}

	ledger, err := s.restore(ledgerCfg)
	if err != nil {
		return nil, err
	}
	log.WithField("size", ledger.Size()).Info("market restored from database")
	s.ledger = ledger
	return s, nil
}

// SetNotifier attaches the event broadcaster. Called once during wiring.
func (s *MarketService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *MarketService) seed(ledger *market.Ledger) error {
	if err := s.itemRepo.Seed(ledger.Items()); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *sqlx.Tx) error {
		for addr, balance := range ledger.Balances() {
			if err := s.balanceRepo.UpsertTx(tx, addr, balance); err != nil {
				return err
			}
		}
		return s.stateRepo.SetTx(tx, royaltyFeeKey, strconv.FormatInt(ledger.RoyaltyFee(), 10))
	})
}

func (s *MarketService) restore(cfg market.Config) (*market.Ledger, error) {
	items, err := s.itemRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalogue: %w", err)
	}
	balances, err := s.balanceRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	royaltyFee := cfg.RoyaltyFee
	if raw, ok, err := s.stateRepo.Get(royaltyFeeKey); err != nil {
		return nil, fmt.Errorf("failed to load royalty fee: %w", err)
	} else if ok {
		royaltyFee, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt royalty fee %q: %w", raw, err)
		}
	}

	return market.Restore(cfg, items, royaltyFee, balances)
}

// Info returns the read-only market configuration.
func (s *MarketService) Info() models.MarketInfo {
	return s.ledger.Info()
}

// Catalogue returns every item in token order.
func (s *MarketService) Catalogue() *models.ItemListResponse {
	items := s.ledger.Items()
	return &models.ItemListResponse{Items: items, TotalCount: len(items)}
}

// UnsoldTokens returns all currently listed items.
func (s *MarketService) UnsoldTokens() *models.ItemListResponse {
	items := s.ledger.UnsoldTokens()
	return &models.ItemListResponse{Items: items, TotalCount: len(items)}
}

// OwnedTokens returns all items owned by an address.
func (s *MarketService) OwnedTokens(addr models.Address) *models.ItemListResponse {
	items := s.ledger.OwnedTokens(addr)
	return &models.ItemListResponse{Items: items, TotalCount: len(items)}
}

// BuyToken executes a purchase and persists the committed transition.
func (s *MarketService) BuyToken(buyer models.Address, tokenID int64, payment int64) (*models.MarketEvent, error) {
	event, err := s.ledger.BuyToken(buyer, tokenID, payment)
	if err != nil {
		return nil, err
	}

	s.persistEvent(event, buyer, event.Seller, s.ledger.Artist())
	s.broadcast(event)
	return event, nil
}

// ResellToken executes a relisting and persists the committed
// transition.
func (s *MarketService) ResellToken(caller models.Address, tokenID int64, newPrice, payment int64) (*models.MarketEvent, error) {
	event, err := s.ledger.ResellToken(caller, tokenID, newPrice, payment)
	if err != nil {
		return nil, err
	}

	s.persistEvent(event, caller)
	s.broadcast(event)
	return event, nil
}

// UpdateRoyaltyFee changes the flat royalty. Owner-only.
func (s *MarketService) UpdateRoyaltyFee(caller models.Address, fee int64) error {
	if err := s.ledger.UpdateRoyaltyFee(caller, fee); err != nil {
		return err
	}
	if err := s.stateRepo.Set(royaltyFeeKey, strconv.FormatInt(fee, 10)); err != nil {
		s.log.WithError(err).Error("failed to persist royalty fee")
	}
	return nil
}

// Balance returns an address's treasury balance.
func (s *MarketService) Balance(addr models.Address) models.BalanceResponse {
	return models.BalanceResponse{
		Address: addr,
		Balance: s.ledger.BalanceOf(addr),
	}
}

// FaucetEnabled reports whether the dev faucet is available.
func (s *MarketService) FaucetEnabled() bool {
	return s.faucet
}

// Faucet credits an address with test funds. Only available when
// enabled in config.
func (s *MarketService) Faucet(addr models.Address, amount int64) (models.BalanceResponse, error) {
	if !s.faucet {
		return models.BalanceResponse{}, fmt.Errorf("%w: faucet is disabled", market.ErrNotAuthorized)
	}
	if err := s.ledger.Credit(addr, amount); err != nil {
		return models.BalanceResponse{}, err
	}
	if err := s.balanceRepo.Upsert(addr, s.ledger.BalanceOf(addr)); err != nil {
		s.log.WithError(err).Error("failed to persist faucet credit")
	}
	return s.Balance(addr), nil
}

// RecentEvents returns the newest journal entries.
func (s *MarketService) RecentEvents(limit int) (*models.EventListResponse, error) {
	events, err := s.eventRepo.ListRecent(limit)
	if err != nil {
		return nil, err
	}
	return &models.EventListResponse{Events: events, TotalCount: len(events)}, nil
}

// TokenEvents returns one token's full history.
func (s *MarketService) TokenEvents(tokenID int64) (*models.EventListResponse, error) {
	if _, err := s.ledger.Item(tokenID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByToken(tokenID)
	if err != nil {
		return nil, err
	}
	return &models.EventListResponse{Events: events, TotalCount: len(events)}, nil
}

// persistEvent mirrors a committed ledger transition into the database:
// the touched catalogue row, the touched balances and the journal
// entry, all in one transaction. The ledger has already committed, so a
// persistence failure is logged rather than surfaced; the database
// catches up on the next transition of the same rows.
func (s *MarketService) persistEvent(event *models.MarketEvent, touched ...models.Address) {
	err := s.db.Transaction(func(tx *sqlx.Tx) error {
		item, err := s.ledger.Item(event.TokenID)
		if err != nil {
			return err
		}
		if err := s.itemRepo.UpsertTx(tx, item); err != nil {
			return err
		}

		seen := map[models.Address]bool{market.EscrowAddress: true}
		if err := s.balanceRepo.UpsertTx(tx, market.EscrowAddress, s.ledger.BalanceOf(market.EscrowAddress)); err != nil {
			return err
		}
		for _, addr := range touched {
			if addr.IsZero() || seen[addr] {
				continue
			}
			seen[addr] = true
			if err := s.balanceRepo.UpsertTx(tx, addr, s.ledger.BalanceOf(addr)); err != nil {
				return err
			}
		}

		return s.eventRepo.InsertTx(tx, event)
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"type":  event.Type,
			"token": event.TokenID,
		}).Error("failed to persist market event")
	}
}

func (s *MarketService) broadcast(event *models.MarketEvent) {
	if s.notifier != nil {
		s.notifier.NotifyEvent(*event)
	}
}
