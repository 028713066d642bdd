package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// HMACAuth holds the credentials of a venue that signs requests with
// HMAC-SHA256 over the query string (Binance and compatible venues).
type HMACAuth struct {
	Key    string
	Secret string
}

// Enabled reports whether both parts of the credential are set.
func (h *HMACAuth) Enabled() bool {
	return h != nil && h.Key != "" && h.Secret != ""
}

// Sign adds timestamp and recvWindow to params and returns the encoded query
// with its hex signature appended.
func (h *HMACAuth) Sign(params url.Values, recvWindow time.Duration) string {
	return h.SignAt(params, recvWindow, time.Now().UnixMilli())
}

// SignAt is like Sign but lets the caller supply the millisecond timestamp.
func (h *HMACAuth) SignAt(params url.Values, recvWindow time.Duration, unixMilli int64) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(unixMilli, 10))
	if recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))
	}
	query := params.Encode()
	return query + "&signature=" + hmacSHA256Hex([]byte(h.Secret), query)
}

// Headers returns the headers a signed request carries.
func (h *HMACAuth) Headers() map[string]string {
	return map[string]string{"X-MBX-APIKEY": h.Key}
}

func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
