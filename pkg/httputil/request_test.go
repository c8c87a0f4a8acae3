package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "valid JSON",
			body:        `{"name": "test"}`,
			expectError: false,
		},
		{
			name:        "invalid JSON",
			body:        `{invalid}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest["name"])
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expectOK   bool
		expectCode int
	}{
		{
			name:     "valid JSON",
			body:     `{"name": "test"}`,
			expectOK: true,
		},
		{
			name:       "invalid JSON",
			body:       `{invalid}`,
			expectOK:   false,
			expectCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			ok := ParseJSONOrError(w, req, &dest)

			assert.Equal(t, tt.expectOK, ok)
			if !tt.expectOK {
				assert.Equal(t, tt.expectCode, w.Code)
			}
		})
	}
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest("GET", "/apps/hr-portal", nil)
	req = mux.SetURLVars(req, map[string]string{"appID": "hr-portal"})

	val, err := ParsePathString(req, "appID")

	assert.NoError(t, err)
	assert.Equal(t, "hr-portal", val)
}

func TestParsePathString_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/apps/", nil)
	req = mux.SetURLVars(req, map[string]string{})

	_, err := ParsePathString(req, "appID")

	assert.Error(t, err)
}

func TestParsePathStringOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/roles/viewer", nil)
	req = mux.SetURLVars(req, map[string]string{"name": "viewer"})

	val, ok := ParsePathStringOrError(w, req, "name")

	assert.True(t, ok)
	assert.Equal(t, "viewer", val)
}

func TestParsePathStringOrError_Missing(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/roles/", nil)
	req = mux.SetURLVars(req, map[string]string{})

	val, ok := ParsePathStringOrError(w, req, "name")

	assert.False(t, ok)
	assert.Empty(t, val)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?limit=5", nil)

	val, err := ParseQueryInt(req, "limit", 20)

	assert.NoError(t, err)
	assert.Equal(t, 5, val)
}

func TestParseQueryInt_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	val, err := ParseQueryInt(req, "limit", 20)

	assert.NoError(t, err)
	assert.Equal(t, 20, val)
}

func TestParseQueryInt_Invalid(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?limit=abc", nil)

	_, err := ParseQueryInt(req, "limit", 20)

	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?status=failed", nil)

	val := ParseQueryString(req, "status", "all")

	assert.Equal(t, "failed", val)
}

func TestParseQueryString_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	val := ParseQueryString(req, "status", "all")

	assert.Equal(t, "all", val)
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?force=true", nil)

	val, err := ParseQueryBool(req, "force", false)

	assert.NoError(t, err)
	assert.True(t, val)
}

func TestParseQueryBool_Default(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	val, err := ParseQueryBool(req, "force", false)

	assert.NoError(t, err)
	assert.False(t, val)
}

func TestParseQueryBool_Invalid(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?force=maybe", nil)

	_, err := ParseQueryBool(req, "force", false)

	assert.Error(t, err)
}

func TestRequireNonEmpty(t *testing.T) {
	w := httptest.NewRecorder()

	ok := RequireNonEmpty(w, "", "app_id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "app_id is required")
}

func TestGetPathVars(t *testing.T) {
	req := httptest.NewRequest("GET", "/apps/hr-portal/roles/viewer", nil)
	req = mux.SetURLVars(req, map[string]string{
		"appID": "hr-portal",
		"name":  "viewer",
	})

	vars := GetPathVars(req)

	assert.Equal(t, "hr-portal", vars["appID"])
	assert.Equal(t, "viewer", vars["name"])
}

// TestParseJSONComplexStruct tests parsing into a complex struct
func TestParseJSONComplexStruct(t *testing.T) {
	type IssueRequest struct {
		Subject string   `json:"subject"`
		Email   string   `json:"email"`
		Groups  []string `json:"groups"`
	}

	body := `{"subject":"u-100","email":"jordan@example.com","groups":["engineering","hr"]}`
	req := httptest.NewRequest("POST", "/tokens", bytes.NewBufferString(body))

	var issue IssueRequest
	err := ParseJSON(req, &issue)

	assert.NoError(t, err)
	assert.Equal(t, "u-100", issue.Subject)
	assert.Equal(t, "jordan@example.com", issue.Email)
	assert.Equal(t, []string{"engineering", "hr"}, issue.Groups)
}

// TestParseJSONEmptyBody tests parsing an empty body
func TestParseJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewBufferString(""))

	var dest map[string]string
	err := ParseJSON(req, &dest)

	assert.Error(t, err)
}

// BenchmarkWriteJSON benchmarks the WriteJSON function
func BenchmarkWriteJSON(b *testing.B) {
	data := map[string]string{"message": "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, data)
	}
}

// BenchmarkParseJSON benchmarks the ParseJSON function
func BenchmarkParseJSON(b *testing.B) {
	body, _ := json.Marshal(map[string]string{"name": "test"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("POST", "/test", bytes.NewBuffer(body))
		var dest map[string]string
		ParseJSON(req, &dest)
	}
}
