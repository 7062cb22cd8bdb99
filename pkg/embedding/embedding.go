// Package embedding computes mention vectors from a word2vec model.
//
// Models are read from the word2vec text format: an optional header line
// "<count> <dim>" followed by one "<word> <v1> ... <vdim>" line per word.
package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/eecworkbench/eec/pkg/models"
)

// ErrEmptyModel is returned when a model file holds no vectors.
var ErrEmptyModel = errors.New("embedding: model has no vectors")

const maxLineBytes = 16 << 20

// Model maps words to vectors of a fixed dimension.
type Model struct {
	dim   int
	words map[string]models.Vector
}

// Load reads a word2vec text model from path.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("embedding: open model: %w", err)
	}
	defer f.Close()

	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Read parses a word2vec text model. Words are stored lowercased; the first
// occurrence wins.
func Read(r io.Reader) (*Model, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	m := &Model{words: make(map[string]models.Vector)}
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && isHeader(fields) {
			if n, _ := strconv.Atoi(fields[0]); n > 0 {
				m.words = make(map[string]models.Vector, n)
			}
			m.dim, _ = strconv.Atoi(fields[1])
			continue
		}

		vec := make(models.Vector, len(fields)-1)
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("embedding: line %d: %w", line, err)
			}
			vec[i] = v
		}
		if m.dim == 0 {
			m.dim = len(vec)
		}
		if len(vec) != m.dim || m.dim == 0 {
			return nil, fmt.Errorf("embedding: line %d: got %d components, want %d", line, len(vec), m.dim)
		}

		word := strings.ToLower(fields[0])
		if _, dup := m.words[word]; !dup {
			m.words[word] = vec
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("embedding: read model: %w", err)
	}
	if len(m.words) == 0 {
		return nil, ErrEmptyModel
	}
	return m, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(fields[0])
	_, err2 := strconv.Atoi(fields[1])
	return err1 == nil && err2 == nil
}

// Dim returns the vector dimension.
func (m *Model) Dim() int { return m.dim }

// Len returns the vocabulary size.
func (m *Model) Len() int { return len(m.words) }

// Lookup returns the vector of word, case-insensitively.
func (m *Model) Lookup(word string) (models.Vector, bool) {
	v, ok := m.words[strings.ToLower(word)]
	return v, ok
}

// Embed returns the mean vector of the known tokens of text, or nil when
// no token is known. A nil Model embeds nothing.
func (m *Model) Embed(text string) models.Vector {
	if m == nil {
		return nil
	}
	var known []models.Vector
	for _, tok := range Tokenize(text) {
		if v, ok := m.words[tok]; ok {
			known = append(known, v)
		}
	}
	if len(known) == 0 {
		return nil
	}
	return models.Mean(known...)
}

// Tokenize lowercases text and splits it on every rune that is neither a
// letter nor a digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
