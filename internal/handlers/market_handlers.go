package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mintfolio/mintfolio-api/internal/market"
	"github.com/mintfolio/mintfolio-api/internal/models"
	"github.com/mintfolio/mintfolio-api/internal/services"
)

// GetMarketInfo handles retrieving the read-only market configuration
func GetMarketInfo(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.Info())
	}
}

// GetCatalogue handles retrieving the full catalogue
func GetCatalogue(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.Catalogue())
	}
}

// GetUnsoldTokens handles retrieving all currently listed items
func GetUnsoldTokens(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.UnsoldTokens())
	}
}

// GetOwnedTokens handles retrieving the items owned by an address
func GetOwnedTokens(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			http.Error(w, "address is required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.OwnedTokens(models.Address(address)))
	}
}

// GetMyTokens handles retrieving the items owned by any of the caller's
// linked wallets
func GetMyTokens(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		wallets, err := authService.Wallets(userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		items := []models.MarketItem{}
		for _, wallet := range wallets {
			owned := marketService.OwnedTokens(models.Address(wallet.Address))
			items = append(items, owned.Items...)
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].TokenID < items[j].TokenID
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&models.ItemListResponse{
			Items:      items,
			TotalCount: len(items),
		})
	}
}

// BuyToken handles purchasing a listed token
func BuyToken(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		tokenID, err := parseTokenID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req models.BuyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		buyer, err := authService.ResolveWallet(userID, req.WalletAddress)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		event, err := marketService.BuyToken(buyer, tokenID, req.Payment)
		if err != nil {
			writeMarketError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(event)
	}
}

// ResellToken handles relisting an owned token
func ResellToken(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		tokenID, err := parseTokenID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req models.ResellRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		caller, err := authService.ResolveWallet(userID, req.WalletAddress)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		event, err := marketService.ResellToken(caller, tokenID, req.Price, req.Payment)
		if err != nil {
			writeMarketError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(event)
	}
}

// UpdateRoyaltyFee handles the owner-only royalty fee update
func UpdateRoyaltyFee(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		var req models.UpdateFeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		caller, err := authService.ResolveWallet(userID, req.WalletAddress)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		if err := marketService.UpdateRoyaltyFee(caller, req.RoyaltyFee); err != nil {
			writeMarketError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.Info())
	}
}

// GetEvents handles the recent activity feed
func GetEvents(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err == nil && parsed > 0 {
				limit = parsed
			}
		}

		response, err := marketService.RecentEvents(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// GetTokenEvents handles one token's transition history
func GetTokenEvents(marketService *services.MarketService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID, err := parseTokenID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		response, err := marketService.TokenEvents(tokenID)
		if err != nil {
			writeMarketError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// GetBalance handles reading the caller's treasury balance
func GetBalance(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		addr, err := authService.ResolveWallet(userID, r.URL.Query().Get("address"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(marketService.Balance(addr))
	}
}

// Faucet handles dev-mode balance credits
func Faucet(marketService *services.MarketService, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r.Context())
		if !ok {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		var req models.FaucetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		addr, err := authService.ResolveWallet(userID, req.WalletAddress)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		balance, err := marketService.Faucet(addr, req.Amount)
		if err != nil {
			writeMarketError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(balance)
	}
}

// parseTokenID extracts the token id from the URL
func parseTokenID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	tokenID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, errors.New("invalid token id")
	}
	return tokenID, nil
}

// writeMarketError maps the ledger's error kinds to HTTP status codes
func writeMarketError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrWrongPayment):
		status = http.StatusPaymentRequired
	case errors.Is(err, market.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrStateIntegrity):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
