package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Name", "Scopes")
	assert.Equal(t, []string{"Name", "Scopes"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("alice", "editor")
	table.AddRow("bob", "-")
	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"bob", "-"}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Value")
	table.AddRow("key1", "value1")
	table.AddRow("key2", "value2")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "VALUE")
	assert.Contains(t, out, "key1")
	assert.Contains(t, out, "value2")
}
