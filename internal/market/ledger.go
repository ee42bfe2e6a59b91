// Package market implements the marketplace ledger: a fixed catalogue
// of tokens minted at construction, bought at an exact ask price and
// relisted by their owners for a flat royalty. Every operation is
// serialized and atomic; it either fully applies or leaves no trace.
package market

import (
	"fmt"
	"sync"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

// EscrowAddress is the market's own identity. It owns a token exactly
// while that token is listed for sale, and it holds the constructor
// deposit plus any relisting royalties.
const EscrowAddress models.Address = "mintfolio:market"

// Config carries the construction parameters of the ledger.
type Config struct {
	RoyaltyFee      int64          // flat royalty in satoshis, may be zero
	Artist          models.Address // royalty payee, fixed for the market's lifetime
	Deployer        models.Address // initial seller of every item, also the admin
	Deposit         int64          // credited to escrow, must cover len(Prices)*RoyaltyFee
	Prices          []int64        // ask price per token, all positive
	MetadataBaseURI string         // opaque, exposed read-only
}

type item struct {
	seller models.Address
	price  int64
}

// Ledger owns the item catalogue, the ownership registry and the
// treasury. All methods are safe for concurrent use; mutating
// operations run one at a time.
type Ledger struct {
	mu sync.Mutex

	owner           models.Address
	artist          models.Address
	royaltyFee      int64
	metadataBaseURI string

	items    []item
	registry Registry
	treasury *Treasury
}

// New constructs a ledger: mints len(cfg.Prices) tokens owned by the
// escrow, lists each at its configured price with the deployer as
// seller, and credits the deposit to the escrow balance. The deposit is
// never refunded; it funds the royalty paid out on each purchase.
func New(cfg Config) (*Ledger, error) {
	if cfg.RoyaltyFee < 0 {
		return nil, fmt.Errorf("%w: royalty fee must not be negative", ErrInvalidArgument)
	}
	if cfg.Artist.IsZero() || cfg.Deployer.IsZero() {
		return nil, fmt.Errorf("%w: artist and deployer addresses are required", ErrInvalidArgument)
	}
	n := int64(len(cfg.Prices))
	if cfg.Deposit < n*cfg.RoyaltyFee {
		return nil, fmt.Errorf("%w: insufficient deposit, need at least %d sats", ErrWrongPayment, n*cfg.RoyaltyFee)
	}

	items := make([]item, n)
	for i, price := range cfg.Prices {
		if price <= 0 {
			return nil, fmt.Errorf("%w: price for token %d must be positive", ErrInvalidArgument, i)
		}
		items[i] = item{seller: cfg.Deployer, price: price}
	}

	l := &Ledger{
		owner:           cfg.Deployer,
		artist:          cfg.Artist,
		royaltyFee:      cfg.RoyaltyFee,
		metadataBaseURI: cfg.MetadataBaseURI,
		items:           items,
		registry:        NewRegistry(int(n), EscrowAddress),
		treasury:        NewTreasury(),
	}
	if err := l.treasury.Credit(EscrowAddress, cfg.Deposit); err != nil {
		return nil, err
	}
	return l, nil
}

// Restore rebuilds a ledger from persisted state. The item snapshot
// must describe the full catalogue in token order, and each row must
// satisfy the listing invariant: seller set if and only if the escrow
// owns the token, with a positive price while listed.
func Restore(cfg Config, items []models.MarketItem, royaltyFee int64, balances map[models.Address]int64) (*Ledger, error) {
	if royaltyFee < 0 {
		return nil, fmt.Errorf("%w: royalty fee must not be negative", ErrInvalidArgument)
	}
	if len(items) != len(cfg.Prices) {
		return nil, fmt.Errorf("%w: snapshot has %d items, catalogue has %d", ErrStateIntegrity, len(items), len(cfg.Prices))
	}

	restored := make([]item, len(items))
	owners := make([]models.Address, len(items))
	for i, row := range items {
		if row.TokenID != int64(i) {
			return nil, fmt.Errorf("%w: snapshot out of order at token %d", ErrStateIntegrity, row.TokenID)
		}
		if row.Owner.IsZero() {
			return nil, fmt.Errorf("%w: token %d has no owner", ErrStateIntegrity, row.TokenID)
		}
		listed := !row.Seller.IsZero()
		escrowed := row.Owner == EscrowAddress
		if listed != escrowed {
			return nil, fmt.Errorf("%w: token %d listing state disagrees with its owner", ErrStateIntegrity, row.TokenID)
		}
		if listed && row.Price <= 0 {
			return nil, fmt.Errorf("%w: listed token %d has non-positive price", ErrStateIntegrity, row.TokenID)
		}
		restored[i] = item{seller: row.Seller, price: row.Price}
		owners[i] = row.Owner
	}

	return &Ledger{
		owner:           cfg.Deployer,
		artist:          cfg.Artist,
		royaltyFee:      royaltyFee,
		metadataBaseURI: cfg.MetadataBaseURI,
		items:           restored,
		registry:        RestoreRegistry(owners),
		treasury:        RestoreTreasury(balances),
	}, nil
}

// UpdateRoyaltyFee changes the flat royalty. Only the market owner may
// call it.
func (l *Ledger) UpdateRoyaltyFee(caller models.Address, fee int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return fmt.Errorf("%w: only the market owner can update the royalty fee", ErrNotAuthorized)
	}
	if fee < 0 {
		return fmt.Errorf("%w: royalty fee must not be negative", ErrInvalidArgument)
	}
	l.royaltyFee = fee
	return nil
}

// BuyToken sells a listed token to buyer for exactly its ask price. The
// buyer's payment goes in full to the previous seller and the flat
// royalty goes to the artist out of the escrow balance. Bookkeeping
// (ownership transfer, clearing the seller) is finalized before any
// payment leaves the escrow, and every step is undone if a later one
// fails.
func (l *Ledger) BuyToken(buyer models.Address, tokenID int64, payment int64) (*models.MarketEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if buyer.IsZero() {
		return nil, fmt.Errorf("%w: buyer address is required", ErrInvalidArgument)
	}
	if buyer == EscrowAddress {
		return nil, fmt.Errorf("%w: the escrow cannot act as a buyer", ErrInvalidArgument)
	}
	if tokenID < 0 || tokenID >= int64(len(l.items)) {
		return nil, fmt.Errorf("%w: unknown token %d", ErrInvalidArgument, tokenID)
	}
	it := &l.items[tokenID]
	if payment != it.price {
		return nil, fmt.Errorf("%w: please send the asking price of %d sats", ErrWrongPayment, it.price)
	}
	seller := it.seller

	// Accept the payment into escrow first; everything after this point
	// must either complete or refund it.
	if err := l.treasury.Transfer(buyer, EscrowAddress, payment); err != nil {
		return nil, err
	}

	if err := l.registry.Transfer(tokenID, EscrowAddress, buyer); err != nil {
		l.mustTransfer(EscrowAddress, buyer, payment)
		return nil, err
	}

	// Clear the listing before money leaves the escrow, so nothing
	// observing the ledger mid-operation can buy the same token again.
	it.seller = models.ZeroAddress

	if err := l.treasury.Transfer(EscrowAddress, l.artist, l.royaltyFee); err != nil {
		it.seller = seller
		l.mustReturnToken(tokenID, buyer)
		l.mustTransfer(EscrowAddress, buyer, payment)
		return nil, fmt.Errorf("royalty payout failed: %w", err)
	}

	if err := l.treasury.Transfer(EscrowAddress, seller, payment); err != nil {
		it.seller = seller
		l.mustTransfer(l.artist, EscrowAddress, l.royaltyFee)
		l.mustReturnToken(tokenID, buyer)
		l.mustTransfer(EscrowAddress, buyer, payment)
		return nil, fmt.Errorf("seller payout failed: %w", err)
	}

	return &models.MarketEvent{
		Type:    models.EventPurchase,
		TokenID: tokenID,
		Seller:  seller,
		Buyer:   buyer,
		Price:   payment,
	}, nil
}

// ResellToken returns a token its caller owns to escrow and lists it at
// a new price. The caller pays exactly the current royalty fee, which
// is retained in the escrow balance and not forwarded to the artist.
func (l *Ledger) ResellToken(caller models.Address, tokenID int64, newPrice, payment int64) (*models.MarketEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller address is required", ErrInvalidArgument)
	}
	if caller == EscrowAddress {
		return nil, fmt.Errorf("%w: the escrow cannot relist a token", ErrInvalidArgument)
	}
	if tokenID < 0 || tokenID >= int64(len(l.items)) {
		return nil, fmt.Errorf("%w: unknown token %d", ErrInvalidArgument, tokenID)
	}
	if newPrice <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidArgument)
	}
	if payment != l.royaltyFee {
		return nil, fmt.Errorf("%w: must pay the royalty fee of %d sats", ErrWrongPayment, l.royaltyFee)
	}

	if err := l.treasury.Transfer(caller, EscrowAddress, payment); err != nil {
		return nil, err
	}

	if err := l.registry.Transfer(tokenID, caller, EscrowAddress); err != nil {
		l.mustTransfer(EscrowAddress, caller, payment)
		return nil, err
	}

	it := &l.items[tokenID]
	it.seller = caller
	it.price = newPrice

	return &models.MarketEvent{
		Type:    models.EventRelist,
		TokenID: tokenID,
		Seller:  caller,
		Price:   newPrice,
	}, nil
}

// UnsoldTokens returns all currently listed items in ascending token
// order.
func (l *Ledger) UnsoldTokens() []models.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := []models.MarketItem{}
	for id := range l.items {
		if !l.items[id].seller.IsZero() {
			items = append(items, l.snapshotLocked(int64(id)))
		}
	}
	return items
}

// OwnedTokens returns all items whose token is currently owned by addr,
// in ascending token order.
func (l *Ledger) OwnedTokens(addr models.Address) []models.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := []models.MarketItem{}
	for id := range l.items {
		owner, err := l.registry.OwnerOf(int64(id))
		if err != nil {
			continue
		}
		if owner == addr {
			items = append(items, l.snapshotLocked(int64(id)))
		}
	}
	return items
}

// Items returns a snapshot of the full catalogue in token order.
func (l *Ledger) Items() []models.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]models.MarketItem, len(l.items))
	for id := range l.items {
		items[id] = l.snapshotLocked(int64(id))
	}
	return items
}

// Item returns a snapshot of one catalogue entry.
func (l *Ledger) Item(tokenID int64) (models.MarketItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tokenID < 0 || tokenID >= int64(len(l.items)) {
		return models.MarketItem{}, fmt.Errorf("%w: unknown token %d", ErrInvalidArgument, tokenID)
	}
	return l.snapshotLocked(tokenID), nil
}

// Credit adds funds to an account (constructor deposit aside, this is
// how the dev faucet funds buyers).
func (l *Ledger) Credit(addr models.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if addr.IsZero() {
		return fmt.Errorf("%w: address is required", ErrInvalidArgument)
	}
	return l.treasury.Credit(addr, amount)
}

// BalanceOf returns an account's treasury balance.
func (l *Ledger) BalanceOf(addr models.Address) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.treasury.BalanceOf(addr)
}

// Balances returns a copy of all non-zero treasury balances.
func (l *Ledger) Balances() map[models.Address]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.treasury.Balances()
}

// Info returns the read-only market configuration.
func (l *Ledger) Info() models.MarketInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	return models.MarketInfo{
		Artist:          l.artist,
		RoyaltyFee:      l.royaltyFee,
		Size:            len(l.items),
		MetadataBaseURI: l.metadataBaseURI,
		EscrowBalance:   l.treasury.BalanceOf(EscrowAddress),
	}
}

// RoyaltyFee returns the current flat royalty.
func (l *Ledger) RoyaltyFee() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.royaltyFee
}

// Owner returns the administrative identity.
func (l *Ledger) Owner() models.Address {
	return l.owner
}

// Artist returns the royalty payee.
func (l *Ledger) Artist() models.Address {
	return l.artist
}

// Size returns the fixed catalogue size.
func (l *Ledger) Size() int {
	return len(l.items)
}

func (l *Ledger) snapshotLocked(tokenID int64) models.MarketItem {
	owner, _ := l.registry.OwnerOf(tokenID)
	return models.MarketItem{
		TokenID: tokenID,
		Seller:  l.items[tokenID].seller,
		Price:   l.items[tokenID].price,
		Owner:   owner,
	}
}

// mustTransfer undoes a treasury movement during rollback. The reverse
// of a transfer that just succeeded cannot fail; if it somehow does the
// ledger is corrupt and continuing would be worse than stopping.
func (l *Ledger) mustTransfer(from, to models.Address, amount int64) {
	if err := l.treasury.Transfer(from, to, amount); err != nil {
		panic(fmt.Sprintf("market: rollback transfer failed: %v", err))
	}
}

func (l *Ledger) mustReturnToken(tokenID int64, holder models.Address) {
	if err := l.registry.Transfer(tokenID, holder, EscrowAddress); err != nil {
		panic(fmt.Sprintf("market: rollback ownership transfer failed: %v", err))
	}
}
