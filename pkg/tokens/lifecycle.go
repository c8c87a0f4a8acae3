package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/observability"
)

var (
	// ErrTokenRevoked reports a structurally valid token that has been
	// revoked.
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrReplayDetected reports reuse of a rotated refresh token. The whole
	// lineage is revoked before this is returned.
	ErrReplayDetected = errors.New("refresh token reuse detected")

	// ErrNotRefreshToken reports an access token presented on the refresh
	// path.
	ErrNotRefreshToken = errors.New("token is not a refresh token")
)

const (
	tokenTypeClaim   = "typ"
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessTTL  = 10 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// registeredClaims are stamped by the signer and stripped before re-issuing
// a rotated pair.
var registeredClaims = []string{"iss", "aud", "iat", "nbf", "exp", "jti", tokenTypeClaim}

// TokenPair is one issued access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessJTI        string    `json:"-"`
	RefreshJTI       string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// refreshRecord is the ledger entry for one refresh token, keyed by the
// SHA-256 hash of the token itself. The parent hash links a rotated token
// to its predecessor so replayed lineages can be revoked together.
type refreshRecord struct {
	jti        string
	subject    string
	active     bool
	parentHash string
	childHash  string
	expiresAt  time.Time
}

// ManagerConfig configures token lifetimes.
type ManagerConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager drives the token lifecycle:
// Issued → (Validated)* → Refreshed | Revoked | Expired.
type Manager struct {
	signer      Signer
	revocations RevocationIndex
	audit       audit.Logger
	metrics     *observability.Metrics
	logger      *observability.Logger
	accessTTL   time.Duration
	refreshTTL  time.Duration

	mu     sync.Mutex
	ledger map[string]*refreshRecord
}

// NewManager creates a token lifecycle manager.
func NewManager(signer Signer, revocations RevocationIndex, auditLog audit.Logger, metrics *observability.Metrics, logger *observability.Logger, config ManagerConfig) *Manager {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if config.AccessTTL <= 0 {
		config.AccessTTL = defaultAccessTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = defaultRefreshTTL
	}
	return &Manager{
		signer:      signer,
		revocations: revocations,
		audit:       auditLog,
		metrics:     metrics,
		logger:      logger,
		accessTTL:   config.AccessTTL,
		refreshTTL:  config.RefreshTTL,
		ledger:      make(map[string]*refreshRecord),
	}
}

// Issue signs a fresh access/refresh pair for the claim map and opens a new
// refresh lineage.
func (m *Manager) Issue(ctx context.Context, claims map[string]interface{}) (*TokenPair, error) {
	return m.issue(ctx, claims, "")
}

func (m *Manager) issue(ctx context.Context, claims map[string]interface{}, parentHash string) (*TokenPair, error) {
	now := time.Now()

	accessClaims := cloneClaims(claims)
	accessClaims[tokenTypeClaim] = tokenTypeAccess
	accessToken, accessJTI, err := m.signer.Sign(accessClaims, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	refreshClaims := cloneClaims(claims)
	refreshClaims[tokenTypeClaim] = tokenTypeRefresh
	refreshToken, refreshJTI, err := m.signer.Sign(refreshClaims, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	subject, _ := claims["sub"].(string)
	hash := hashToken(refreshToken)
	expiresAt := now.Add(m.refreshTTL)

	m.mu.Lock()
	m.ledger[hash] = &refreshRecord{
		jti:        refreshJTI,
		subject:    subject,
		active:     true,
		parentHash: parentHash,
		expiresAt:  expiresAt,
	}
	if parentHash != "" {
		if parent, ok := m.ledger[parentHash]; ok {
			parent.childHash = hash
		}
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TokensIssuedTotal.WithLabelValues(tokenTypeAccess).Inc()
		m.metrics.TokensIssuedTotal.WithLabelValues(tokenTypeRefresh).Inc()
	}

	event := audit.NewEvent(audit.EventTypeTokenIssue, audit.EventStatusSuccess, "token pair issued")
	event.Subject = subject
	event.TokenID = accessJTI
	if err := m.audit.Log(ctx, event); err != nil {
		m.logger.WithError(err).Warn("writing token audit event")
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Validate verifies the token and checks the revocation index. This is the
// hot request path: one signature check and one indexed lookup, no retries.
func (m *Manager) Validate(ctx context.Context, token string) (map[string]interface{}, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		m.auditFailure(ctx, "", "token failed verification")
		return nil, err
	}

	jti, _ := claims["jti"].(string)
	revoked, err := m.revocations.IsRevoked(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("checking revocation for %s: %w", jti, err)
	}
	if revoked {
		m.auditFailure(ctx, jti, "revoked token presented")
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh rotates a refresh token: the presented token is deactivated and a
// new pair linked to it via the parent hash is issued. Reuse of an
// already-rotated token is a security event: the whole lineage is revoked.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if typ, _ := claims[tokenTypeClaim].(string); typ != tokenTypeRefresh {
		return nil, ErrNotRefreshToken
	}

	hash := hashToken(refreshToken)

	m.mu.Lock()
	record, ok := m.ledger[hash]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidToken)
	}
	if !record.active {
		lineage := m.lineageLocked(hash)
		m.mu.Unlock()
		return nil, m.handleReplay(ctx, record, lineage)
	}
	record.active = false
	m.mu.Unlock()

	for _, key := range registeredClaims {
		delete(claims, key)
	}
	return m.issue(ctx, claims, hash)
}

// Revoke invalidates the token until its natural expiry and, for refresh
// tokens, deactivates the ledger record.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.signer.Verify(token)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)

	if err := m.revocations.Revoke(ctx, jti, ttlFromClaims(claims)); err != nil {
		return err
	}

	hash := hashToken(token)
	m.mu.Lock()
	if record, ok := m.ledger[hash]; ok {
		record.active = false
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TokensRevokedTotal.Inc()
	}
	subject, _ := claims["sub"].(string)
	event := audit.NewEvent(audit.EventTypeTokenRevoke, audit.EventStatusSuccess, "token revoked")
	event.Subject = subject
	event.TokenID = jti
	if err := m.audit.Log(ctx, event); err != nil {
		m.logger.WithError(err).Warn("writing token audit event")
	}
	return nil
}

// lineageLocked walks parent and child links from the given record,
// collecting every jti in the chain. Caller holds m.mu.
func (m *Manager) lineageLocked(hash string) []string {
	var jtis []string
	seen := make(map[string]struct{})

	for h := hash; h != ""; {
		if _, ok := seen[h]; ok {
			break
		}
		seen[h] = struct{}{}
		record, ok := m.ledger[h]
		if !ok {
			break
		}
		jtis = append(jtis, record.jti)
		record.active = false
		h = record.parentHash
	}
	for h := m.ledger[hash].childHash; h != ""; {
		if _, ok := seen[h]; ok {
			break
		}
		seen[h] = struct{}{}
		record, ok := m.ledger[h]
		if !ok {
			break
		}
		jtis = append(jtis, record.jti)
		record.active = false
		h = record.childHash
	}
	return jtis
}

// handleReplay revokes the lineage and records the security event.
func (m *Manager) handleReplay(ctx context.Context, record *refreshRecord, lineage []string) error {
	for _, jti := range lineage {
		if err := m.revocations.Revoke(ctx, jti, time.Until(record.expiresAt)); err != nil {
			m.logger.WithError(err).WithField("jti", jti).Error("revoking replayed token lineage")
		}
	}

	if m.metrics != nil {
		m.metrics.TokenReplaysDetected.Inc()
	}
	m.logger.WithFields(map[string]interface{}{
		"subject": record.subject,
		"jti":     record.jti,
		"lineage": len(lineage),
	}).Warn("refresh token reuse detected, lineage revoked")

	event := audit.NewEvent(audit.EventTypeTokenReplayDetected, audit.EventStatusDenied, "reuse of rotated refresh token")
	event.Subject = record.subject
	event.TokenID = record.jti
	event.Metadata = map[string]interface{}{"revoked_lineage_size": len(lineage)}
	if err := m.audit.Log(ctx, event); err != nil {
		m.logger.WithError(err).Warn("writing replay audit event")
	}
	return ErrReplayDetected
}

func (m *Manager) auditFailure(ctx context.Context, jti, message string) {
	event := audit.NewEvent(audit.EventTypeTokenValidateFail, audit.EventStatusFailure, message)
	event.TokenID = jti
	if err := m.audit.Log(ctx, event); err != nil {
		m.logger.WithError(err).Warn("writing token audit event")
	}
}

// hashToken returns the hex SHA-256 of the raw token string; this is the
// parent-hash linkage value and the ledger key.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func cloneClaims(claims map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(claims)+1)
	for k, v := range claims {
		out[k] = v
	}
	return out
}

// ttlFromClaims derives the remaining lifetime from the exp claim so a
// revocation entry outlives the token without lingering forever.
func ttlFromClaims(claims map[string]interface{}) time.Duration {
	if exp, ok := claims["exp"].(float64); ok {
		if d := time.Until(time.Unix(int64(exp), 0)); d > 0 {
			return d
		}
	}
	return time.Minute
}
