package services

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// taprootAddressPrefix marks the address form the service accepts: the
// prefix followed by the hex of a 32-byte x-only public key.
const taprootAddressPrefix = "bc1p"

// WalletService handles wallet operations
type WalletService struct{}

// NewWalletService creates a new WalletService
func NewWalletService() *WalletService {
	return &WalletService{}
}

// TaprootAddress renders a public key in the address form the service
// accepts.
func TaprootAddress(pubKey *btcec.PublicKey) string {
	return taprootAddressPrefix + hex.EncodeToString(schnorr.SerializePubKey(pubKey))
}

// VerifySignature checks a Schnorr signature over message against the
// x-only public key the address carries. Anything that is not a 64-byte
// Schnorr signature cannot be verified and is rejected.
func (s *WalletService) VerifySignature(address, message, signature string) (bool, error) {
	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("invalid signature format: %w", err)
	}
	if len(sigBytes) != schnorr.SignatureSize {
		return false, fmt.Errorf("unsupported signature: expected a %d-byte schnorr signature", schnorr.SignatureSize)
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("failed to parse schnorr signature: %w", err)
	}

	pubKey, err := s.pubKeyFromAddress(address)
	if err != nil {
		return false, err
	}

	msgHash := chainhash.HashB([]byte(message))
	return sig.Verify(msgHash, pubKey), nil
}

// pubKeyFromAddress extracts the x-only public key an address encodes.
func (s *WalletService) pubKeyFromAddress(address string) (*btcec.PublicKey, error) {
	if !strings.HasPrefix(address, taprootAddressPrefix) {
		return nil, fmt.Errorf("unsupported address %q: expected a taproot address", address)
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(address, taprootAddressPrefix))
	if err != nil {
		return nil, fmt.Errorf("address %q does not carry a valid key: %w", address, err)
	}
	if len(keyBytes) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("address %q does not carry a %d-byte x-only key", address, schnorr.PubKeyBytesLen)
	}

	pubKey, err := schnorr.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("address %q does not carry a valid key: %w", address, err)
	}
	return pubKey, nil
}

// GenerateMessageToSign generates a message for wallet signature
func (s *WalletService) GenerateMessageToSign(address string) string {
	return fmt.Sprintf("Sign this message to authenticate with Mintfolio: %s", address)
}

// IsAddressValid checks whether an address is one the service can
// verify signatures for.
func (s *WalletService) IsAddressValid(address string) bool {
	_, err := s.pubKeyFromAddress(address)
	return err == nil
}
