package memory

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "pages/run/1.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://pages/run/1.html", uri)

	payload[0] = 'C'
	stored, contentType, ok := store.Object("pages/run/1.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "text/html", contentType)
	require.Equal(t, 1, store.Len())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "text/html", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestPageStoreUpsertsByDocID(t *testing.T) {
	t.Parallel()

	store := NewPageStore()
	ctx := context.Background()
	at := time.Unix(100, 0).UTC()

	require.NoError(t, store.RecordPage(ctx, crawler.PageRecord{DocID: "2", RunID: "r1", IndexedAt: at}))
	require.NoError(t, store.RecordPage(ctx, crawler.PageRecord{DocID: "1", RunID: "r1", ViewCount: 1}))
	require.NoError(t, store.RecordPage(ctx, crawler.PageRecord{DocID: "1", RunID: "r2", ViewCount: 9}))

	got, ok := store.Page("1")
	require.True(t, ok)
	require.Equal(t, "r2", got.RunID)
	require.Equal(t, int64(9), got.ViewCount)

	r1 := store.ListRun("r1")
	require.Len(t, r1, 1)
	require.Equal(t, "2", r1[0].DocID)
	require.Empty(t, store.ListRun("missing"))

	require.Error(t, store.RecordPage(ctx, crawler.PageRecord{}))
}
