package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds a read client for the wallet behind privateKeyHex.
// accountAddr overrides the derived address for agent wallets.
func NewHyperliquidClient(ctx context.Context, privateKeyHex, accountAddr, baseURL string) (*HyperliquidClient, error) {
	privateKey, derived, err := DeriveHyperliquidAccount(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if accountAddr == "" {
		accountAddr = derived
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		ctx,
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

// DeriveHyperliquidAccount parses a hex private key and returns it with its address.
func DeriveHyperliquidAccount(privateKeyHex string) (*ecdsa.PrivateKey, string, error) {
	key := strings.TrimSpace(privateKeyHex)
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, "", errors.Wrap(err, "parse hyperliquid private key")
	}

	pubECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("error casting public key to ECDSA")
	}

	return privateKey, crypto.PubkeyToAddress(*pubECDSA).Hex(), nil
}

func (c *HyperliquidClient) Exchange() *hyperliquid.Exchange { return c.exchange }
func (c *HyperliquidClient) AccountAddress() string          { return c.accountAddr }
