package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quereus/internal/engine"
	"quereus/internal/kv/memkv"
	"quereus/internal/types"
	"quereus/internal/vtab/memory"
)

func TestRenderRowJoinsValuesAndRendersNull(t *testing.T) {
	row := types.Row{types.Integer(1), types.Null(), types.Text("bolt")}
	assert.Equal(t, "1\tNULL\tbolt", renderRow(row))
}

func newREPLDatabase(t *testing.T) *engine.Database {
	t.Helper()
	provider := memkv.NewProvider()
	db := engine.New(provider, engine.DefaultOptions())
	db.RegisterVtabModule(context.Background(), "memory", memory.New(provider), nil)
	return db
}

func TestRunREPLExecutesStatementsAndReportsRowsAffected(t *testing.T) {
	db := newREPLDatabase(t)
	in := strings.NewReader(
		"CREATE TABLE widgets (id INT PRIMARY KEY, name VARCHAR(32));\n" +
			"INSERT INTO widgets (id, name) VALUES (1, 'bolt');\n" +
			"SELECT name FROM widgets WHERE id = 1;\n",
	)
	var out strings.Builder
	err := runREPL(db, in, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "OK, 1 row(s) affected")
	assert.Contains(t, out.String(), "bolt")
}

func TestRunREPLReportsErrorsWithoutStoppingTheSession(t *testing.T) {
	db := newREPLDatabase(t)
	in := strings.NewReader(
		"SELECT * FROM nosuch;\n" +
			"CREATE TABLE widgets (id INT PRIMARY KEY);\n",
	)
	var out strings.Builder
	err := runREPL(db, in, &out)
	require.NoError(t, err, "a statement error must not abort the REPL loop itself")
	assert.Contains(t, out.String(), "error:")
	assert.Contains(t, out.String(), "OK, 0 row(s) affected")
}

func TestRunREPLFlushesTrailingStatementWithoutSemicolon(t *testing.T) {
	db := newREPLDatabase(t)
	in := strings.NewReader("CREATE TABLE widgets (id INT PRIMARY KEY)")
	var out strings.Builder
	err := runREPL(db, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "OK, 0 row(s) affected")
}
