package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

func openMem(t *testing.T, batchSize int) *Writer {
	t.Helper()
	w, err := Open(Config{BatchSize: batchSize}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func storedTitle(t *testing.T, w *Writer, id string) (string, uint64) {
	t.Helper()
	q := bleve.NewTermQuery(id)
	q.SetField(FieldID)
	req := bleve.NewSearchRequest(q)
	req.Fields = []string{FieldTitle}
	res, err := w.Index().Search(req)
	require.NoError(t, err)
	if res.Total == 0 {
		return "", 0
	}
	title, _ := res.Hits[0].Fields[FieldTitle].(string)
	return title, res.Total
}

func TestUpsertIsIdempotentByID(t *testing.T) {
	t.Parallel()

	w := openMem(t, 0)
	ctx := context.Background()

	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "1", Title: "first", Content: "old body"}))
	count, err := w.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "1", Title: "second", Content: "new body"}))
	count, err = w.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	title, total := storedTitle(t, w, "1")
	require.Equal(t, uint64(1), total)
	require.Equal(t, "second", title)
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	t.Parallel()

	w := openMem(t, 0)
	err := w.Upsert(context.Background(), crawler.CanonicalDocument{Title: "orphan"})
	require.ErrorIs(t, err, crawler.ErrIndex)

	count, err := w.Count()
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBatchModeCommitsOnSizeAndFlush(t *testing.T) {
	t.Parallel()

	w := openMem(t, 3)
	ctx := context.Background()

	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "a", Title: "a"}))
	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "b", Title: "b"}))
	count, err := w.Count()
	require.NoError(t, err)
	require.Zero(t, count, "buffered documents are not visible before commit")

	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "a", Title: "a2"}))
	require.NoError(t, w.Upsert(ctx, crawler.CanonicalDocument{ID: "c", Title: "c"}))
	require.NoError(t, w.Flush(ctx))

	count, err = w.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	title, _ := storedTitle(t, w, "a")
	require.Equal(t, "a2", title)

	require.NoError(t, w.Flush(ctx))
}

func TestOpenReopensExistingIndex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blog.bleve")
	w, err := Open(Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Upsert(context.Background(), crawler.CanonicalDocument{ID: "7", Title: "kept"}))
	require.NoError(t, w.Close())

	reopened, err := Open(Config{Path: path}, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	count, err := reopened.Count()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestFieldsOmitsAbsentOptionalFields(t *testing.T) {
	t.Parallel()

	bare := Fields(crawler.CanonicalDocument{ID: "1", Title: "t"})
	require.NotContains(t, bare, FieldTags)
	require.NotContains(t, bare, FieldViewCount)
	require.Equal(t, float64(0), bare[FieldPublishTime])

	full := Fields(crawler.CanonicalDocument{
		ID:      "2",
		Tags:    "",
		HasTags: true,
		Stats:   &crawler.EngagementStats{ViewCount: 4, OpposeCount: 1},
	})
	require.Contains(t, full, FieldTags)
	require.Equal(t, float64(4), full[FieldViewCount])
	require.Equal(t, float64(1), full[FieldOpposeCount])
}
