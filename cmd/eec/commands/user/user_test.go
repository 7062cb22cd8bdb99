package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
)

func TestParseScopes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected models.Scopes
		wantErr  bool
	}{
		{name: "empty string", input: "", expected: models.Scopes{}},
		{name: "single scope", input: "editor", expected: models.Scopes{"editor"}},
		{name: "canonical order", input: "export, admin", expected: models.Scopes{"admin", "export"}},
		{name: "duplicates and blanks", input: "editor,,editor,", expected: models.Scopes{"editor"}},
		{name: "unknown scope", input: "editor,root", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScopes(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidScope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUserListRows(t *testing.T) {
	list := UserList{
		viewOf(&models.User{ID: "u1", Username: "alice", Scopes: models.Scopes{"editor", "export"}}),
		viewOf(&models.User{ID: "u2", Username: "bob"}),
	}
	assert.Equal(t, []string{"USERNAME", "ID", "SCOPES"}, list.Headers())
	assert.Equal(t, [][]string{
		{"alice", "u1", "editor,export"},
		{"bob", "u2", "-"},
	}, list.Rows())
}
