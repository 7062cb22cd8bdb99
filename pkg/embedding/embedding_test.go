package embedding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eecworkbench/eec/pkg/models"
)

const sample = `4 2
ada 1 0
lovelace 0 1
Countess 2 2
ada 9 9
`

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Ada Lovelace", []string{"ada", "lovelace"}},
		{"  ADA,lovelace!! (1815)", []string{"ada", "lovelace", "1815"}},
		{"Müller-Lüdenscheidt", []string{"müller", "lüdenscheidt"}},
		{"北京 大学", []string{"北京", "大学"}},
		{"--", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Tokenize(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead(t *testing.T) {
	m, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dim())
	assert.Equal(t, 3, m.Len())

	v, ok := m.Lookup("ADA")
	require.True(t, ok)
	assert.Equal(t, models.Vector{1, 0}, v, "first occurrence wins")

	_, ok = m.Lookup("countess")
	assert.True(t, ok, "words are stored lowercased")
}

func TestReadWithoutHeader(t *testing.T) {
	m, err := Read(strings.NewReader("turing 0.5 -0.5 1e-3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Dim())
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyModel)

	_, err = Read(strings.NewReader("a 1 2\nb 1\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = Read(strings.NewReader("a 1 x\n"))
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	m, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, models.Vector{0.5, 0.5}, m.Embed("Ada Lovelace"))
	assert.Equal(t, models.Vector{1, 0}, m.Embed("ada, the unknown"))
	assert.Nil(t, m.Embed("nobody here"))

	var none *Model
	assert.Nil(t, none.Embed("ada"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
