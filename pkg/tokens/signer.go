package tokens

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken reports a token that failed signature or claim
// verification.
var ErrInvalidToken = errors.New("invalid token")

// Signer signs claim maps into tokens and verifies them back. The claims
// pipeline depends only on this interface; the cryptography lives behind it.
type Signer interface {
	// Sign embeds the claims in a token valid for ttl, returning the token
	// and its unique jti.
	Sign(claims map[string]interface{}, ttl time.Duration) (token, jti string, err error)

	// Verify checks the token's signature and registered claims, returning
	// the embedded claim map.
	Verify(token string) (map[string]interface{}, error)
}

// RS256Signer signs tokens with an RSA private key. Standard registered
// claims (iss, aud, iat, nbf, exp, jti) are stamped on every token.
type RS256Signer struct {
	key      *rsa.PrivateKey
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewRS256Signer creates an RS256 signer for the given issuer and audience.
func NewRS256Signer(key *rsa.PrivateKey, issuer, audience string) *RS256Signer {
	return &RS256Signer{
		key:      key,
		issuer:   issuer,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// NewRS256SignerFromPEM parses a PEM-encoded RSA private key.
func NewRS256SignerFromPEM(pemBytes []byte, issuer, audience string) (*RS256Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	return NewRS256Signer(key, issuer, audience), nil
}

// Sign implements Signer.
func (s *RS256Signer) Sign(claims map[string]interface{}, ttl time.Duration) (string, string, error) {
	now := time.Now()
	jti := uuid.NewString()

	mc := make(jwt.MapClaims, len(claims)+6)
	for k, v := range claims {
		mc[k] = v
	}
	mc["iss"] = s.issuer
	mc["aud"] = s.audience
	mc["iat"] = jwt.NewNumericDate(now)
	mc["nbf"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(ttl))
	mc["jti"] = jti

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, mc).SignedString(s.key)
	if err != nil {
		return "", "", fmt.Errorf("signing token: %w", err)
	}
	return signed, jti, nil
}

// Verify implements Signer.
func (s *RS256Signer) Verify(token string) (map[string]interface{}, error) {
	parsed, err := s.parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return &s.key.PublicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return map[string]interface{}(claims), nil
}
