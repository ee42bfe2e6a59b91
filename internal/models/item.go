package models

// Address identifies a payment destination or token holder. The zero
// value marks "no address" and is what an item's seller is set to once
// the item has been sold.
type Address string

// ZeroAddress is the sentinel meaning "not currently listed for sale".
const ZeroAddress Address = ""

// IsZero reports whether the address is the sentinel value.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarketItem represents one slot of the fixed catalogue. Items are
// created in bulk when the market is deployed and never added or
// removed afterward; only Seller, Price and Owner change.
type MarketItem struct {
	TokenID int64   `json:"token_id" db:"token_id"`
	Seller  Address `json:"seller" db:"seller"`
	Price   int64   `json:"price" db:"price"` // in satoshis
	Owner   Address `json:"owner" db:"owner"`
}

// Listed reports whether the item is currently for sale.
func (i MarketItem) Listed() bool {
	return !i.Seller.IsZero()
}

// MarketInfo is the read-only market configuration exposed to clients.
type MarketInfo struct {
	Artist          Address `json:"artist"`
	RoyaltyFee      int64   `json:"royalty_fee"`
	Size            int     `json:"size"`
	MetadataBaseURI string  `json:"metadata_base_uri"`
	EscrowBalance   int64   `json:"escrow_balance"`
}

// ItemListResponse represents the response for listing market items
type ItemListResponse struct {
	Items      []MarketItem `json:"items"`
	TotalCount int          `json:"total_count"`
}

// BuyRequest represents a request to buy a listed token
type BuyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Payment       int64  `json:"payment"`
}

// ResellRequest represents a request to relist an owned token
type ResellRequest struct {
	WalletAddress string `json:"wallet_address"`
	Price         int64  `json:"price"`
	Payment       int64  `json:"payment"`
}

// UpdateFeeRequest represents an owner request to change the royalty fee
type UpdateFeeRequest struct {
	WalletAddress string `json:"wallet_address"`
	RoyaltyFee    int64  `json:"royalty_fee"`
}

// FaucetRequest represents a dev-mode request to credit a balance
type FaucetRequest struct {
	WalletAddress string `json:"wallet_address"`
	Amount        int64  `json:"amount"`
}

// BalanceResponse represents a treasury balance read
type BalanceResponse struct {
	Address Address `json:"address"`
	Balance int64   `json:"balance"`
}
