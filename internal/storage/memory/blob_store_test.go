package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "exports/b1/abc.csv", "text/csv", bytes.NewBufferString("a,b\n"))
	require.NoError(t, err)
	require.Equal(t, "memory://exports/b1/abc.csv", uri)

	body, ok := store.Object("exports/b1/abc.csv")
	require.True(t, ok)
	require.Equal(t, "a,b\n", string(body))

	body[0] = 'X'
	again, _ := store.Object("exports/b1/abc.csv")
	require.Equal(t, "a,b\n", string(again))

	_, ok = store.Object("missing")
	require.False(t, ok)
}
