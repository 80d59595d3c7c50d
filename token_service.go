package accounts

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/prophet-studio/go-accounts/middleware/jwtware"
)

var (
	ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode("TOKEN_EXPIRED")

	ErrTokenMalformed = errors.New("token malformed", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode("TOKEN_MALFORMED")
)

// TokenService signs and validates access tokens
type TokenService interface {
	SignClaims(claims *JWTClaims) (string, error)
	ValidateClaims(tokenString string) (*JWTClaims, error)
	Validate(tokenString string) (jwtware.AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface with HS256
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = NoopLogger()
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
	}
}

// NewTokenServiceFromConfig builds the service from Config
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenServiceImpl {
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience(), logger)
}

// SignClaims signs the claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// ValidateClaims parses and validates a token string
func (ts *TokenServiceImpl) ValidateClaims(tokenString string) (*JWTClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validation found unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrTokenMalformed
}

// Validate implements jwtware.TokenValidator
func (ts *TokenServiceImpl) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := ts.ValidateClaims(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
