package ops

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrBadAckToken is returned for every verification failure. A single
// opaque error keeps callers from leaking whether the event id exists.
var ErrBadAckToken = errors.New("invalid ack token")

// AckClaims is the payload bound into a one-click acknowledgement token.
type AckClaims struct {
	EventID     string `json:"eid"`
	WindowLabel string `json:"win,omitempty"`
	Exp         int64  `json:"exp"`
}

// AckTokenService signs and verifies short-lived single-purpose tokens
// for acknowledging an alert from outside the authenticated console.
// Tokens are never a substitute for a session.
type AckTokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewAckTokenService(secret string, ttl time.Duration) *AckTokenService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AckTokenService{secret: []byte(secret), ttl: ttl}
}

// Sign produces payload.signature with both parts base64url encoded.
func (s *AckTokenService) Sign(eventID, windowLabel string, now time.Time) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("empty event id")
	}
	claims := AckClaims{
		EventID:     eventID,
		WindowLabel: windowLabel,
		Exp:         now.UTC().Add(s.ttl).Unix(),
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	sig := hmacSHA256(s.secret, []byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks the signature and expiry and returns the embedded claims
// only when both hold.
func (s *AckTokenService) Verify(token string, now time.Time) (*AckClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return nil, ErrBadAckToken
	}
	payload := parts[0]
	gotSig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrBadAckToken
	}
	wantSig := hmacSHA256(s.secret, []byte(payload))
	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return nil, ErrBadAckToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrBadAckToken
	}
	var claims AckClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, ErrBadAckToken
	}
	if claims.EventID == "" || now.UTC().Unix() >= claims.Exp {
		return nil, ErrBadAckToken
	}
	return &claims, nil
}

func hmacSHA256(secret, payload []byte) []byte {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write(payload)
	return m.Sum(nil)
}
