package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	has, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, has)

	batch := db.NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	require.Equal(t, 2, batch.Len())

	// Nothing is visible before Write.
	has, err = db.Has([]byte("b"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, batch.Write())
	value, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Delete([]byte("b")))
	has, err = db.Has([]byte("b"))
	require.NoError(t, err)
	require.False(t, has)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)

	require.NoError(t, db.Put([]byte("lending/x"), []byte("1")))
	require.NoError(t, db.Put([]byte("lending/y"), []byte("2")))
	require.NoError(t, db.Put([]byte("votes/z"), []byte("3")))
	n, err := db.Count([]byte("lending/"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
