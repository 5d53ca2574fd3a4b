package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := createLocalStore(map[string]interface{}{"dir": dir})
	require.NoError(t, err)
	return store, dir
}

func saveText(t *testing.T, store Store, key, content string) {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	defer tmp.Close()
	_, err = tmp.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), key, tmp, int64(len(content))))
}

func TestLocalStoreSaveAndOpen(t *testing.T) {
	store, dir := newTestLocalStore(t)
	saveText(t, store, "books/abc123.txt", "page one\fpage two")

	_, err := os.Stat(filepath.Join(dir, "books", "abc123.txt"))
	require.NoError(t, err)

	r, err := store.Open(context.Background(), "books/abc123.txt")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "page one\fpage two", string(data))
}

func TestLocalStoreSaveFromConsumedReader(t *testing.T) {
	store, _ := newTestLocalStore(t)
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	defer tmp.Close()
	_, err = tmp.WriteString("already read once")
	require.NoError(t, err)
	// Ingestion reads the upload before handing it to the store; the
	// store must rewind rather than persist a short object.
	_, err = tmp.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadAll(tmp)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "books/consumed.txt", tmp, 17))
	r, err := store.Open(context.Background(), "books/consumed.txt")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "already read once", string(data))
}

func TestLocalStoreOverwritesExistingKey(t *testing.T) {
	store, _ := newTestLocalStore(t)
	saveText(t, store, "books/k.txt", "first")
	saveText(t, store, "books/k.txt", "second")

	r, err := store.Open(context.Background(), "books/k.txt")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, _ := newTestLocalStore(t)
	for _, key := range []string{
		"",
		"..",
		"../outside.txt",
		"books/../../outside.txt",
		"books\\win.txt",
		"books//double.txt",
	} {
		_, err := store.Open(context.Background(), key)
		require.Error(t, err, "key %q", key)
	}
}

func TestLocalStoreURL(t *testing.T) {
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api/v1/files/books/k.txt",
		store.URL("books/k.txt", "http://localhost:8080/"))

	public, err := createLocalStore(map[string]interface{}{
		"dir":        t.TempDir(),
		"public_url": "https://cdn.example.com/bookdex/",
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/bookdex/books/k.txt",
		public.URL("/books/k.txt", "http://localhost:8080"))
}

func TestLocalStoreRequiresDir(t *testing.T) {
	_, err := createLocalStore(map[string]interface{}{})
	require.Error(t, err)
	_, err = createLocalStore(nil)
	require.Error(t, err)
}
