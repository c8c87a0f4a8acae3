package idp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	provider := NewStaticProvider()
	provider.Add("cred-1", Identity{Subject: "u1", Email: "u1@example.com", Groups: []string{"hr-admins"}})

	identity, err := provider.Authenticate(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.Subject)
	assert.Equal(t, []string{"hr-admins"}, identity.Groups)

	_, err = provider.Authenticate(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestGetArrayValueShapes(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   []string
	}{
		{"json array", map[string]interface{}{"groups": []interface{}{"a", "b"}}, []string{"a", "b"}},
		{"string slice", map[string]interface{}{"groups": []string{"a"}}, []string{"a"}},
		{"single string", map[string]interface{}{"groups": "a"}, []string{"a"}},
		{"empty string", map[string]interface{}{"groups": ""}, nil},
		{"missing", map[string]interface{}{}, nil},
		{"mixed types", map[string]interface{}{"groups": []interface{}{"a", 7, "b"}}, []string{"a", "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, getArrayValue(tc.claims, "groups"))
		})
	}
}

func TestOIDCConfigValidation(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), OIDCConfig{ClientID: "c"})
	assert.Error(t, err)

	_, err = NewOIDCProvider(context.Background(), OIDCConfig{IssuerURL: "https://issuer.example"})
	assert.Error(t, err)
}
