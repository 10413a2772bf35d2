package mapping_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_LoadsOnceFromDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "countries.csv")
	require.NoError(t, os.WriteFile(path, []byte("DE,Germany\nFR, France\n"), 0o644))

	c := mapping.NewCatalog(dir)
	tbl, err := c.Get("countries")
	require.NoError(t, err)
	assert.Equal(t, "Germany", tbl.Lookup("DE"))
	assert.Equal(t, "France", tbl.Lookup("FR"))
	assert.Equal(t, "IT", tbl.Lookup("IT"), "unmapped values pass through")

	// Later file changes are not observed.
	require.NoError(t, os.Remove(path))
	again, err := c.Get("countries")
	require.NoError(t, err)
	assert.Equal(t, tbl, again)
}

func TestCatalog_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("a,b,c\n"), 0o644))
	c := mapping.NewCatalog(dir)

	_, err := c.Get("missing")
	assert.ErrorIs(t, err, mapping.ErrUnknownTable)

	_, err = c.Get("../escape")
	assert.ErrorIs(t, err, mapping.ErrUnknownTable)

	_, err = c.Get("bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, mapping.ErrUnknownTable)
}

func TestCatalog_Preload(t *testing.T) {
	c := mapping.NewCatalog("")
	c.Preload("status", mapping.Table{"1": "active"})

	tbl, err := c.Get("status")
	require.NoError(t, err)
	assert.Equal(t, "active", tbl.Lookup("1"))
	assert.Equal(t, []string{"status"}, c.Names())
}
