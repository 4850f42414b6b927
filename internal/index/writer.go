package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// Config controls where the index lives and how writes are committed.
type Config struct {
	// Path is the on-disk index directory. Empty means an in-memory index.
	Path string
	// BatchSize > 1 buffers upserts and commits every BatchSize documents
	// (and on Flush). 0 or 1 commits every upsert immediately.
	BatchSize int
}

// Writer is the single write handle for the index. Upserts are serialized by
// a mutex; the same bleve.Index also serves readers.
//
// Readers see the index as of the last commit that happened before their
// search started. A search already running does not observe commits made
// while it runs, and in batch mode buffered documents are invisible until
// the batch is committed.
type Writer struct {
	mu        sync.Mutex
	idx       bleve.Index
	batchSize int
	batch     *bleve.Batch
	logger    *zap.Logger
}

// Open opens the index at cfg.Path, creating it if it does not exist.
func Open(cfg Config, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		idx bleve.Index
		err error
	)
	switch {
	case cfg.Path == "":
		idx, err = bleve.NewMemOnly(NewMapping())
	case exists(cfg.Path):
		idx, err = bleve.Open(cfg.Path)
	default:
		idx, err = bleve.New(cfg.Path, NewMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open index %q: %w", crawler.ErrIndex, cfg.Path, err)
	}
	logger.Info("index opened", zap.String("path", cfg.Path), zap.Int("batch_size", cfg.BatchSize))
	return NewWriter(idx, cfg.BatchSize, logger), nil
}

// NewWriter wraps an already opened index.
func NewWriter(idx bleve.Index, batchSize int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{idx: idx, batchSize: batchSize, logger: logger}
}

// Index exposes the underlying index for read-only query use.
func (w *Writer) Index() bleve.Index {
	return w.idx
}

// Upsert replaces any document sharing doc.ID with doc. In immediate mode the
// write is committed before Upsert returns.
func (w *Writer) Upsert(_ context.Context, doc crawler.CanonicalDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document has no id", crawler.ErrIndex)
	}
	fields := Fields(doc)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.batchSize <= 1 {
		if err := w.idx.Index(doc.ID, fields); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", crawler.ErrIndex, doc.ID, err)
		}
		return nil
	}

	if w.batch == nil {
		w.batch = w.idx.NewBatch()
	}
	if err := w.batch.Index(doc.ID, fields); err != nil {
		return fmt.Errorf("%w: stage %s: %w", crawler.ErrIndex, doc.ID, err)
	}
	if w.batch.Size() >= w.batchSize {
		return w.commitLocked()
	}
	return nil
}

// Flush commits any buffered upserts. It is a no-op in immediate mode.
func (w *Writer) Flush(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitLocked()
}

func (w *Writer) commitLocked() error {
	if w.batch == nil || w.batch.Size() == 0 {
		return nil
	}
	n := w.batch.Size()
	err := w.idx.Batch(w.batch)
	w.batch.Reset()
	if err != nil {
		return fmt.Errorf("%w: commit batch of %d: %w", crawler.ErrIndex, n, err)
	}
	w.logger.Debug("index batch committed", zap.Int("documents", n))
	return nil
}

// Count returns the number of committed live documents.
func (w *Writer) Count() (uint64, error) {
	n, err := w.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", crawler.ErrIndex, err)
	}
	return n, nil
}

// Close flushes pending writes and closes the index.
func (w *Writer) Close() error {
	flushErr := w.Flush(context.Background())
	if err := w.idx.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("%w: close: %w", crawler.ErrIndex, err))
	}
	return flushErr
}

// Fields maps a canonical document onto the persisted field set. TAGS and the
// engagement counters are omitted when absent.
func Fields(doc crawler.CanonicalDocument) map[string]interface{} {
	fields := map[string]interface{}{
		FieldID:               doc.ID,
		FieldTitle:            doc.Title,
		FieldContent:          doc.Content,
		FieldAuthor:           doc.Author,
		FieldURL:              doc.URL,
		FieldPublishTime:      float64(doc.PublishTime),
		FieldPublishTimeStore: doc.PublishTimeDisplay,
	}
	if doc.HasTags {
		fields[FieldTags] = doc.Tags
	}
	if s := doc.Stats; s != nil {
		fields[FieldViewCount] = float64(s.ViewCount)
		fields[FieldCommentCount] = float64(s.CommentCount)
		fields[FieldRecommendCount] = float64(s.RecommendCount)
		fields[FieldOpposeCount] = float64(s.OpposeCount)
	}
	return fields
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
