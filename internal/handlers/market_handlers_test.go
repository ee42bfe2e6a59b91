package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mintfolio/mintfolio-api/internal/config"
	"github.com/mintfolio/mintfolio-api/internal/models"
	"github.com/mintfolio/mintfolio-api/internal/services"
	"github.com/mintfolio/mintfolio-api/internal/store"
)

type testWallet struct {
	priv    *btcec.PrivateKey
	address string
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return testWallet{priv: priv, address: services.TaprootAddress(priv.PubKey())}
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()

	sig, err := schnorr.Sign(w.priv, chainhash.HashB([]byte(message)))
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	return hex.EncodeToString(sig.Serialize())
}

type testAPI struct {
	router   *chi.Mux
	wallets  *services.WalletService
	deployer testWallet
	artist   testWallet
	buyer    testWallet
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{
		deployer: newTestWallet(t),
		artist:   newTestWallet(t),
		buyer:    newTestWallet(t),
	}

	db, err := store.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	marketService, err := services.NewMarketService(config.MarketConfig{
		RoyaltyFee:      1,
		Artist:          api.artist.address,
		Deployer:        api.deployer.address,
		Deposit:         8,
		MetadataBaseURI: "https://assets.mintfolio.dev/tokens/",
		Prices:          []int64{100, 200, 300, 400, 500, 600, 700, 800},
		Faucet:          true,
	}, db, log)
	if err != nil {
		t.Fatalf("NewMarketService failed: %v", err)
	}

	userRepo := store.NewUserRepository(db)
	api.wallets = services.NewWalletService()
	authService := services.NewAuthService(userRepo, api.wallets, config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: 1,
	})

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/wallet", WalletLogin(authService))
		r.Get("/auth/challenge", AuthChallenge(api.wallets))

		r.Get("/market", GetMarketInfo(marketService))
		r.Get("/market/tokens", GetCatalogue(marketService))
		r.Get("/market/tokens/unsold", GetUnsoldTokens(marketService))
		r.Get("/market/tokens/owned", GetOwnedTokens(marketService))
		r.Get("/market/tokens/{id}/events", GetTokenEvents(marketService))
		r.Get("/market/events", GetEvents(marketService))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(authService))

			r.Get("/me/tokens", GetMyTokens(marketService, authService))
			r.Get("/me/balance", GetBalance(marketService, authService))
			r.Post("/market/tokens/{id}/buy", BuyToken(marketService, authService))
			r.Post("/market/tokens/{id}/resell", ResellToken(marketService, authService))
			r.Put("/market/royalty-fee", UpdateRoyaltyFee(marketService, authService))
			r.Post("/faucet", Faucet(marketService, authService))
		})
	})

	api.router = r
	return api
}

// login authenticates a wallet with a real signature over the challenge
// message and returns a bearer token.
func (a *testAPI) login(t *testing.T, w testWallet) string {
	t.Helper()

	message := a.wallets.GenerateMessageToSign(w.address)
	body, _ := json.Marshal(models.WalletAuthRequest{
		Address:   w.address,
		Signature: w.sign(t, message),
		Message:   message,
	})
	rr := a.do(t, http.MethodPost, "/api/auth/wallet", "", bytes.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("wallet login failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var token models.AuthToken
	if err := json.NewDecoder(rr.Body).Decode(&token); err != nil {
		t.Fatalf("failed to decode auth token: %v", err)
	}
	return token.Token
}

func (a *testAPI) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) doJSON(t *testing.T, method, target, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	return a.do(t, method, target, token, bytes.NewReader(body))
}

func (a *testAPI) fund(t *testing.T, token, address string, amount int64) {
	t.Helper()

	rr := a.doJSON(t, http.MethodPost, "/api/faucet", token, models.FaucetRequest{
		WalletAddress: address,
		Amount:        amount,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("faucet failed with status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetMarketInfo(t *testing.T) {
	api := setupAPI(t)

	rr := api.do(t, http.MethodGet, "/api/market", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var info models.MarketInfo
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if info.Size != 8 || info.RoyaltyFee != 1 || string(info.Artist) != api.artist.address {
		t.Errorf("unexpected market info: %+v", info)
	}
}

func TestGetUnsoldTokens(t *testing.T) {
	api := setupAPI(t)

	rr := api.do(t, http.MethodGet, "/api/market/tokens/unsold", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp models.ItemListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TotalCount != 8 {
		t.Fatalf("expected 8 unsold tokens, got %d", resp.TotalCount)
	}
	for _, item := range resp.Items {
		if string(item.Seller) != api.deployer.address {
			t.Errorf("token %d: expected deployer as seller, got %q", item.TokenID, item.Seller)
		}
	}
}

func TestGetOwnedTokensRequiresAddress(t *testing.T) {
	api := setupAPI(t)

	rr := api.do(t, http.MethodGet, "/api/market/tokens/owned", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAuthChallenge(t *testing.T) {
	api := setupAPI(t)

	rr := api.do(t, http.MethodGet, "/api/auth/challenge?address="+api.buyer.address, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] == "" {
		t.Error("expected a challenge message")
	}

	rr = api.do(t, http.MethodGet, "/api/auth/challenge?address=not-a-bitcoin-address", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid address, got %d", rr.Code)
	}
}

func TestWalletLoginRejectsBadSignature(t *testing.T) {
	api := setupAPI(t)
	message := api.wallets.GenerateMessageToSign(api.deployer.address)

	// A non-schnorr signature blob must not authenticate.
	rr := api.doJSON(t, http.MethodPost, "/api/auth/wallet", "", models.WalletAuthRequest{
		Address:   api.deployer.address,
		Signature: "0102",
		Message:   message,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unverifiable signature, got %d", rr.Code)
	}

	// Another wallet's signature must not authenticate as the deployer.
	rr = api.doJSON(t, http.MethodPost, "/api/auth/wallet", "", models.WalletAuthRequest{
		Address:   api.deployer.address,
		Signature: api.buyer.sign(t, message),
		Message:   message,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for another key's signature, got %d", rr.Code)
	}

	// An address the service cannot verify keys for is rejected outright.
	rr = api.doJSON(t, http.MethodPost, "/api/auth/wallet", "", models.WalletAuthRequest{
		Address:   "mintfolio:market",
		Signature: api.buyer.sign(t, message),
		Message:   message,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for unverifiable address, got %d", rr.Code)
	}
}

func TestBuyTokenRequiresAuth(t *testing.T) {
	api := setupAPI(t)

	rr := api.doJSON(t, http.MethodPost, "/api/market/tokens/0/buy", "", models.BuyRequest{Payment: 100})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestBuyTokenFlow(t *testing.T) {
	api := setupAPI(t)
	token := api.login(t, api.buyer)
	api.fund(t, token, api.buyer.address, 100)

	// Wrong payment is refused before anything moves.
	rr := api.doJSON(t, http.MethodPost, "/api/market/tokens/0/buy", token, models.BuyRequest{
		WalletAddress: api.buyer.address,
		Payment:       42,
	})
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402 for wrong payment, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = api.doJSON(t, http.MethodPost, "/api/market/tokens/0/buy", token, models.BuyRequest{
		WalletAddress: api.buyer.address,
		Payment:       100,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("buy failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var event models.MarketEvent
	if err := json.NewDecoder(rr.Body).Decode(&event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != models.EventPurchase || event.TokenID != 0 || string(event.Buyer) != api.buyer.address {
		t.Errorf("unexpected purchase event: %+v", event)
	}

	// The token now shows up under the buyer's wallets.
	rr = api.do(t, http.MethodGet, "/api/me/tokens", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me/tokens failed with status %d", rr.Code)
	}
	var owned models.ItemListResponse
	if err := json.NewDecoder(rr.Body).Decode(&owned); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if owned.TotalCount != 1 || owned.Items[0].TokenID != 0 {
		t.Fatalf("expected buyer to own token 0, got %+v", owned)
	}

	// Buying a sold token again is a state conflict.
	other := newTestWallet(t)
	otherToken := api.login(t, other)
	api.fund(t, otherToken, other.address, 100)
	rr = api.doJSON(t, http.MethodPost, "/api/market/tokens/0/buy", otherToken, models.BuyRequest{
		WalletAddress: other.address,
		Payment:       100,
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 for sold token, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestResellTokenFlow(t *testing.T) {
	api := setupAPI(t)
	token := api.login(t, api.buyer)
	api.fund(t, token, api.buyer.address, 101)

	rr := api.doJSON(t, http.MethodPost, "/api/market/tokens/0/buy", token, models.BuyRequest{
		WalletAddress: api.buyer.address,
		Payment:       100,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("buy failed with status %d: %s", rr.Code, rr.Body.String())
	}

	// A non-positive price is rejected.
	rr = api.doJSON(t, http.MethodPost, "/api/market/tokens/0/resell", token, models.ResellRequest{
		WalletAddress: api.buyer.address,
		Price:         0,
		Payment:       1,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for zero price, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = api.doJSON(t, http.MethodPost, "/api/market/tokens/0/resell", token, models.ResellRequest{
		WalletAddress: api.buyer.address,
		Price:         250,
		Payment:       1,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("resell failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var event models.MarketEvent
	if err := json.NewDecoder(rr.Body).Decode(&event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != models.EventRelist || event.Price != 250 || string(event.Seller) != api.buyer.address {
		t.Errorf("unexpected relist event: %+v", event)
	}

	// The relisted token is back in the unsold list at its new price.
	rr = api.do(t, http.MethodGet, "/api/market/tokens/unsold", "", nil)
	var unsold models.ItemListResponse
	if err := json.NewDecoder(rr.Body).Decode(&unsold); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	found := false
	for _, item := range unsold.Items {
		if item.TokenID == 0 {
			found = true
			if item.Price != 250 || string(item.Seller) != api.buyer.address {
				t.Errorf("unexpected relisted item: %+v", item)
			}
		}
	}
	if !found {
		t.Error("relisted token missing from unsold list")
	}
}

func TestUpdateRoyaltyFeeOwnerOnly(t *testing.T) {
	api := setupAPI(t)

	buyerToken := api.login(t, api.buyer)
	rr := api.doJSON(t, http.MethodPut, "/api/market/royalty-fee", buyerToken, models.UpdateFeeRequest{
		WalletAddress: api.buyer.address,
		RoyaltyFee:    5,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-owner, got %d: %s", rr.Code, rr.Body.String())
	}

	ownerToken := api.login(t, api.deployer)
	rr = api.doJSON(t, http.MethodPut, "/api/market/royalty-fee", ownerToken, models.UpdateFeeRequest{
		WalletAddress: api.deployer.address,
		RoyaltyFee:    5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("fee update failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var info models.MarketInfo
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if info.RoyaltyFee != 5 {
		t.Errorf("expected royalty fee 5, got %d", info.RoyaltyFee)
	}
}

func TestGetEventsFeed(t *testing.T) {
	api := setupAPI(t)
	token := api.login(t, api.buyer)
	api.fund(t, token, api.buyer.address, 300)

	for _, id := range []int64{0, 1} {
		price := (id + 1) * 100
		rr := api.doJSON(t, http.MethodPost, fmt.Sprintf("/api/market/tokens/%d/buy", id), token, models.BuyRequest{
			WalletAddress: api.buyer.address,
			Payment:       price,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("buy of token %d failed with status %d: %s", id, rr.Code, rr.Body.String())
		}
	}

	rr := api.do(t, http.MethodGet, "/api/market/events?limit=1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("events feed failed with status %d", rr.Code)
	}
	var feed models.EventListResponse
	if err := json.NewDecoder(rr.Body).Decode(&feed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if feed.TotalCount != 1 {
		t.Fatalf("expected limit to cap feed at 1 event, got %d", feed.TotalCount)
	}

	rr = api.do(t, http.MethodGet, "/api/market/tokens/1/events", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("token events failed with status %d", rr.Code)
	}
	var history models.EventListResponse
	if err := json.NewDecoder(rr.Body).Decode(&history); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if history.TotalCount != 1 || history.Events[0].TokenID != 1 {
		t.Errorf("unexpected token history: %+v", history)
	}
}

func TestGetBalance(t *testing.T) {
	api := setupAPI(t)
	token := api.login(t, api.buyer)
	api.fund(t, token, api.buyer.address, 77)

	rr := api.do(t, http.MethodGet, "/api/me/balance", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("balance failed with status %d: %s", rr.Code, rr.Body.String())
	}

	var balance models.BalanceResponse
	if err := json.NewDecoder(rr.Body).Decode(&balance); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(balance.Address) != api.buyer.address || balance.Balance != 77 {
		t.Errorf("unexpected balance: %+v", balance)
	}
}

func TestInvalidTokenID(t *testing.T) {
	api := setupAPI(t)
	token := api.login(t, api.buyer)

	rr := api.doJSON(t, http.MethodPost, "/api/market/tokens/abc/buy", token, models.BuyRequest{
		WalletAddress: api.buyer.address,
		Payment:       100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed token id, got %d", rr.Code)
	}

	api.fund(t, token, api.buyer.address, 100)
	rr = api.doJSON(t, http.MethodPost, "/api/market/tokens/99/buy", token, models.BuyRequest{
		WalletAddress: api.buyer.address,
		Payment:       100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown token, got %d: %s", rr.Code, rr.Body.String())
	}
}
