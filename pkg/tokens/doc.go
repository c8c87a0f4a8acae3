// Package tokens implements the token lifecycle: issuance of signed
// access/refresh token pairs, validation with a fast revocation lookup,
// refresh rotation with parent-hash lineage and replay detection, and
// revocation. Signing is behind the Signer interface; the RS256
// implementation carries standard iss/aud/iat/nbf/exp/jti claims.
package tokens
