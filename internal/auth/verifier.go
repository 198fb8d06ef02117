// Package auth implements Room Token verification (spec.md §4.3): the
// ConnectWithToken handshake hands a bearer token here and gets back
// either a model.RoomToken describing which stage to join (or create)
// or a model.TokenVerificationError explaining why not.
//
// Verification uses golang-jwt/jwt/v5 -- not part of the teacher's own
// require block, but the most common JWT library across the wider
// retrieval corpus's go.mod/go.sum files (see DESIGN.md). Repeated
// verification of the same still-valid token (a reconnect presenting the
// same Room Token again) is served from a hashicorp/golang-lru/v2 cache
// instead of re-running signature verification every time.
package auth

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webitel/stagehub/internal/domain/model"
)

// DefaultCacheSize bounds the verified-token cache.
const DefaultCacheSize = 4096

type claims struct {
	jwt.RegisteredClaims
	AccountID int64           `json:"account_id"`
	StageID   int64           `json:"stage_id"`
	StageType string          `json:"stage_type"`
	UserInfo  json.RawMessage `json:"user_info"`
}

// Verifier checks Room Token signatures and shape.
type Verifier struct {
	key   []byte
	cache *lru.Cache[string, model.RoomToken]
}

// NewVerifier builds a Verifier for HMAC-signed Room Tokens. cacheSize <=
// 0 uses DefaultCacheSize.
func NewVerifier(key []byte, cacheSize int) (*Verifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, model.RoomToken](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Verifier{key: key, cache: cache}, nil
}

// Verify validates tokenString and returns the Room Token it encodes.
func (v *Verifier) Verify(tokenString string) (model.RoomToken, error) {
	if rt, ok := v.cache.Get(tokenString); ok {
		now := time.Now()
		if now.Before(rt.NotAfter) && !now.Before(rt.NotBefore) {
			return rt, nil
		}
		v.cache.Remove(tokenString)
	}

	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		return model.RoomToken{}, &model.TokenVerificationError{Reason: reasonFor(err), Cause: err}
	}

	rt := model.RoomToken{
		AccountID: c.AccountID,
		StageID:   c.StageID,
		StageType: c.StageType,
		UserInfo:  []byte(c.UserInfo),
	}
	if c.NotBefore != nil {
		rt.NotBefore = c.NotBefore.Time
	}
	if c.ExpiresAt != nil {
		rt.NotAfter = c.ExpiresAt.Time
	}

	v.cache.Add(tokenString, rt)
	return rt, nil
}

func reasonFor(err error) model.TokenFailureReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.TokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.TokenNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenInvalidClaims):
		return model.TokenSignature
	default:
		return model.TokenMalformed
	}
}
