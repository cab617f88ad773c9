package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"

	"github.com/pkg/errors"
)

// HMACSHA256Hex signs payload the way Binance and Bybit expect.
func HMACSHA256Hex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA256Base64 signs payload the way OKX, KuCoin and HTX expect.
func HMACSHA256Base64(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// KrakenSign computes API-Sign: HMAC-SHA512 of path + SHA256(nonce + postData),
// keyed with the base64 decoded secret.
func KrakenSign(secret, path, nonce, postData string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", errors.Wrap(err, "decode kraken secret")
	}

	sha := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(sha[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
