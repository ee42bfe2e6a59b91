package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mintfolio/mintfolio-api/internal/config"
	"github.com/mintfolio/mintfolio-api/internal/models"
	"github.com/mintfolio/mintfolio-api/internal/store"
)

// Claims represents the JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthService handles authentication operations
type AuthService struct {
	userRepo      *store.UserRepository
	walletService *WalletService
	cfg           config.AuthConfig
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo *store.UserRepository, walletService *WalletService, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		walletService: walletService,
		cfg:           cfg,
	}
}

// AuthenticateWithWallet authenticates a user with a wallet signature
func (s *AuthService) AuthenticateWithWallet(req models.WalletAuthRequest) (*models.AuthToken, error) {
	if !s.walletService.IsAddressValid(req.Address) {
		return nil, fmt.Errorf("invalid wallet address")
	}

	// Verify the signature
	valid, err := s.walletService.VerifySignature(req.Address, req.Message, req.Signature)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	if !valid {
		return nil, fmt.Errorf("invalid signature")
	}

	// Find or create user based on wallet address
	user, err := s.userRepo.GetByWalletAddress(req.Address)
	if err != nil {
		return nil, err
	}

	// If user doesn't exist, create a new one with this wallet
	if user == nil {
		user, err = s.userRepo.Create()
		if err != nil {
			return nil, err
		}

		// Add the wallet to the user
		_, err = s.userRepo.AddWallet(user.ID, req.Address, "bitcoin")
		if err != nil {
			return nil, err
		}

		// Reload the user to get the wallet
		user, err = s.userRepo.GetByID(user.ID)
		if err != nil {
			return nil, err
		}
	}

	// Generate a JWT token
	token, expiresAt, err := s.generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &models.AuthToken{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// LinkWallet links a wallet to an existing user
func (s *AuthService) LinkWallet(userID string, req models.WalletAuthRequest) error {
	if !s.walletService.IsAddressValid(req.Address) {
		return fmt.Errorf("invalid wallet address")
	}

	// Verify the signature
	valid, err := s.walletService.VerifySignature(req.Address, req.Message, req.Signature)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	if !valid {
		return fmt.Errorf("invalid signature")
	}

	// Check if wallet already exists
	existingWallet, err := s.userRepo.GetWalletByAddress(req.Address)
	if err != nil {
		return err
	}

	if existingWallet != nil && existingWallet.UserID != userID {
		return fmt.Errorf("wallet already linked to another user")
	}

	// Add the wallet to the user
	_, err = s.userRepo.AddWallet(userID, req.Address, "bitcoin")
	return err
}

// ResolveWallet maps an authenticated user to the wallet address a
// market operation should act as. An empty address picks the user's
// first wallet; a non-empty one must belong to the user.
func (s *AuthService) ResolveWallet(userID, address string) (models.Address, error) {
	wallets, err := s.userRepo.GetWalletsByUserID(userID)
	if err != nil {
		return models.ZeroAddress, err
	}

	if address == "" {
		if len(wallets) == 0 {
			return models.ZeroAddress, fmt.Errorf("user has no linked wallet")
		}
		return models.Address(wallets[0].Address), nil
	}

	for _, w := range wallets {
		if w.Address == address {
			return models.Address(address), nil
		}
	}

	return models.ZeroAddress, fmt.Errorf("wallet not found or not owned by user")
}

// Wallets returns the addresses linked to a user.
func (s *AuthService) Wallets(userID string) ([]models.Wallet, error) {
	return s.userRepo.GetWalletsByUserID(userID)
}

// ValidateToken validates a JWT token
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Check the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(s.cfg.JWTSecret), nil
	})

	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	return claims.UserID, nil
}

// generateToken generates a JWT token for a user
func (s *AuthService) generateToken(userID string) (string, time.Time, error) {
	// Set expiration time
	expiresAt := time.Now().Add(time.Duration(s.cfg.JWTExpiration) * time.Hour)

	// Create claims
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "mintfolio-api",
			Subject:   userID,
		},
	}

	// Create token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// Sign token with secret key
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}
