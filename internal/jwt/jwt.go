// Actor tokens for the API layer. Tokens carry the user's id, email and role;
// session issuance itself happens out of band and is not this service's
// concern.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"school-device-issuance/internal/config"
)

var (
	ErrNonValidToken    = errors.New("token did not pass validation")
	ErrInvalidClaimType = errors.New("invalid claim type")
)

var tokenSignatureAlg = jwt.SigningMethodHS256

// ActorClaim identifies an authenticated API actor.
type ActorClaim struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

func NewActorClaim(userID int64, email, role, sessionID string) ActorClaim {
	return ActorClaim{
		UserID:           userID,
		Email:            email,
		Role:             role,
		SessionID:        sessionID,
		RegisteredClaims: newRegisteredClaims(config.Cfg.TokenTTL),
	}
}

func newRegisteredClaims(ttlMinutes uint) jwt.RegisteredClaims {
	now := time.Now().UTC()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
	}
}

// Generic JWT token generation function
func GenerateJWT(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(tokenSignatureAlg, claims)
	JWTSecret := []byte(config.Cfg.Secret)
	return token.SignedString(JWTSecret)
}

func DecodeActorJWT(tokenString string) (*ActorClaim, error) {
	return decodeJWT(tokenString, &ActorClaim{})
}

func decodeJWT[T jwt.Claims](tokenString string, claimsType T) (T, error) {
	var zero T

	parsedToken, err := jwt.ParseWithClaims(tokenString, claimsType, func(token *jwt.Token) (interface{}, error) {
		JWTSecret := []byte(config.Cfg.Secret)
		return JWTSecret, nil
	}, jwt.WithValidMethods([]string{tokenSignatureAlg.Alg()}))

	if err != nil {
		return zero, err
	} else if parsedToken == nil || !parsedToken.Valid {
		return zero, ErrNonValidToken
	} else if claims, ok := parsedToken.Claims.(T); ok {
		return claims, nil
	}

	return zero, ErrInvalidClaimType
}
