package claims

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cids/pkg/policy"
	"github.com/platinummonkey/cids/pkg/registry"
)

type staticResolver struct {
	grants []policy.EffectiveGrant
	err    error
	target string
}

func (r *staticResolver) Resolve(ctx context.Context, user policy.User, targetAppID string) ([]policy.EffectiveGrant, error) {
	r.target = targetAppID
	return r.grants, r.err
}

func hrGrant() policy.EffectiveGrant {
	return policy.EffectiveGrant{
		AppID:       "hr-portal",
		Roles:       []string{"viewer"},
		Permissions: []string{"hr-portal.employees.read.*"},
		RLSFilters: registry.RLSFilters{
			"employees": {"department": {{FilterExpression: "department = :dept", Operator: registry.OperatorAnd}}},
		},
	}
}

func TestComposeBuildsClaimMap(t *testing.T) {
	resolver := &staticResolver{grants: []policy.EffectiveGrant{
		hrGrant(),
		{AppID: "finance", Roles: []string{"viewer"}, Permissions: []string{"finance.reports.read.total"}},
	}}
	composer := NewComposer(resolver, nil, nil)

	user := policy.User{Subject: "u1", Email: "u1@example.com", Groups: []string{"everyone"}}
	out, err := composer.Compose(context.Background(), user, "", Binding{IP: "10.1.2.3", Device: "dev-42"})
	require.NoError(t, err)

	assert.Equal(t, "u1", out[ClaimSubject])
	assert.Equal(t, "u1@example.com", out[ClaimEmail])
	assert.Equal(t, TokenVersion, out[ClaimTokenVersion])
	assert.Equal(t, "10.1.2.3", out[ClaimBoundIP])
	assert.Equal(t, "dev-42", out[ClaimBoundDevice])

	roles, ok := out[ClaimRoles].(map[string][]string)
	require.True(t, ok)
	assert.Equal(t, []string{"viewer"}, roles["hr-portal"])
	assert.Equal(t, []string{"viewer"}, roles["finance"])

	perms, ok := out[ClaimPermissions].(map[string][]string)
	require.True(t, ok)
	assert.Equal(t, []string{"hr-portal.employees.read.*"}, perms["hr-portal"])

	filters, ok := out[ClaimRLSFilters].(map[string]registry.RLSFilters)
	require.True(t, ok)
	assert.Contains(t, filters, "hr-portal")
	assert.NotContains(t, filters, "finance", "apps without filters emit no rls_filters entry")
}

func TestComposeOmitsEmptyOptionalClaims(t *testing.T) {
	resolver := &staticResolver{grants: []policy.EffectiveGrant{{AppID: "hr-portal", Roles: []string{"viewer"}}}}
	composer := NewComposer(resolver, nil, nil)

	out, err := composer.Compose(context.Background(), policy.User{Subject: "u1"}, "", Binding{})
	require.NoError(t, err)
	assert.NotContains(t, out, ClaimEmail)
	assert.NotContains(t, out, ClaimBoundIP)
	assert.NotContains(t, out, ClaimBoundDevice)
	assert.NotContains(t, out, ClaimRLSFilters)
}

func TestComposePassesTargetAppThrough(t *testing.T) {
	resolver := &staticResolver{}
	composer := NewComposer(resolver, nil, nil)

	_, err := composer.Compose(context.Background(), policy.User{Subject: "u1"}, "hr-portal", Binding{})
	require.NoError(t, err)
	assert.Equal(t, "hr-portal", resolver.target)
}

func TestTemplateMatchPriorityOrder(t *testing.T) {
	store := NewTemplateStore()
	store.Replace([]Template{
		{Name: "default", Claims: []string{ClaimRoles}},
		{Name: "low", Groups: []string{"everyone"}, Priority: 1, Claims: []string{ClaimRoles}},
		{Name: "high", Groups: []string{"everyone", "admins"}, Priority: 10, Claims: []string{ClaimRoles, ClaimPermissions}},
	})

	tmpl, ok := store.Match([]string{"everyone"})
	require.True(t, ok)
	assert.Equal(t, "high", tmpl.Name, "highest-priority matching template wins")

	tmpl, ok = store.Match([]string{"unmatched-group"})
	require.True(t, ok)
	assert.Equal(t, "default", tmpl.Name, "zero-group template is the fallback")
}

func TestTemplateMatchNoTemplates(t *testing.T) {
	store := NewTemplateStore()
	_, ok := store.Match([]string{"everyone"})
	assert.False(t, ok)
}

func TestComposeTemplateFiltersClaims(t *testing.T) {
	resolver := &staticResolver{grants: []policy.EffectiveGrant{hrGrant()}}
	store := NewTemplateStore()
	store.Replace([]Template{
		{Name: "lean", Groups: []string{"contractors"}, Priority: 5, Claims: []string{ClaimPermissions}},
	})
	composer := NewComposer(resolver, store, nil)

	user := policy.User{Subject: "u1", Email: "u1@example.com", Groups: []string{"contractors"}}
	out, err := composer.Compose(context.Background(), user, "", Binding{IP: "10.0.0.1", Device: "dev-1"})
	require.NoError(t, err)

	assert.Contains(t, out, ClaimPermissions)
	assert.NotContains(t, out, ClaimRoles, "claims outside the whitelist are dropped")
	assert.NotContains(t, out, ClaimEmail)
	assert.NotContains(t, out, ClaimRLSFilters)

	assert.Equal(t, "u1", out[ClaimSubject])
	assert.Equal(t, TokenVersion, out[ClaimTokenVersion])
	assert.Equal(t, "10.0.0.1", out[ClaimBoundIP])
	assert.Equal(t, "dev-1", out[ClaimBoundDevice], "binding claims always survive the template")
}

func TestComposeUnmatchedTemplatePassesThrough(t *testing.T) {
	resolver := &staticResolver{grants: []policy.EffectiveGrant{hrGrant()}}
	store := NewTemplateStore()
	store.Replace([]Template{
		{Name: "admins-only", Groups: []string{"admins"}, Priority: 5, Claims: []string{ClaimPermissions}},
	})
	composer := NewComposer(resolver, store, nil)

	out, err := composer.Compose(context.Background(), policy.User{Subject: "u1", Email: "u1@example.com", Groups: []string{"everyone"}}, "", Binding{})
	require.NoError(t, err)
	assert.Contains(t, out, ClaimRoles)
	assert.Contains(t, out, ClaimPermissions)
	assert.Contains(t, out, ClaimEmail, "no matching template means all claims pass through")
}

func TestTemplateLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - name: default
    claims: [roles, permissions]
  - name: contractors
    groups: [contractors]
    priority: 3
    claims: [permissions]
`), 0o600))

	store := NewTemplateStore()
	require.NoError(t, store.LoadFile(path))

	templates := store.Templates()
	require.Len(t, templates, 2)
	assert.Equal(t, "contractors", templates[0].Name, "stored sorted by descending priority")

	tmpl, ok := store.Match([]string{"contractors"})
	require.True(t, ok)
	assert.Equal(t, []string{"permissions"}, tmpl.Claims)
}

func TestTemplateWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - name: default\n    claims: [roles]\n"), 0o600))

	store := NewTemplateStore()
	require.NoError(t, store.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx, path, nil))

	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - name: default\n    claims: [roles, permissions]\n"), 0o600))
	require.Eventually(t, func() bool {
		tmpl, ok := store.Match(nil)
		return ok && len(tmpl.Claims) == 2
	}, 3*time.Second, 10*time.Millisecond)
}
