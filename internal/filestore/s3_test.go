package filestore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type brokenSeekReader struct{}

func (brokenSeekReader) Read(p []byte) (int, error)     { return 0, fmt.Errorf("not readable") }
func (brokenSeekReader) Seek(int64, int) (int64, error) { return 0, fmt.Errorf("seek unsupported") }
func (brokenSeekReader) Close() error                   { return nil }

func TestS3StoreConfigValidation(t *testing.T) {
	_, err := createS3Store(map[string]interface{}{"bucket": "b"})
	require.Error(t, err)
	_, err = createS3Store(map[string]interface{}{
		"endpoint": "s3.example.com",
		"bucket":   "books",
	})
	require.Error(t, err, "missing secrets")
}

func TestS3StoreObjectKeyAndURL(t *testing.T) {
	store := &s3Store{
		prefix:   "bookdex",
		endpoint: "s3.example.com",
		bucket:   "books",
		useSSL:   true,
	}
	require.Equal(t, "bookdex/books/k.txt", store.objectKey("/books/k.txt"))
	require.Equal(t, "https://s3.example.com/books/bookdex/books/k.txt",
		store.URL("books/k.txt", "http://ignored"))

	public := &s3Store{publicURL: "https://cdn.example.com/"}
	require.Equal(t, "https://cdn.example.com/books/k.txt",
		public.URL("books/k.txt", ""))
}

func TestS3StoreSaveRewindsBeforeUpload(t *testing.T) {
	store := &s3Store{}
	// A reader that cannot seek must fail before any upload is attempted.
	err := store.Save(context.Background(), "books/k.txt", brokenSeekReader{}, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rewind source")
}
