package crawler

import "errors"

// Error classes for the crawl and query paths. Wrap them with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrTransport covers fetch failures and timeouts. The target is skipped.
	ErrTransport = errors.New("transport error")
	// ErrParse marks data-quality problems; the document proceeds with defaults.
	ErrParse = errors.New("parse error")
	// ErrNormalization means a record lacks required fields and is dropped.
	ErrNormalization = errors.New("normalization error")
	// ErrIndex is a writer IO failure for one document; the writer stays usable.
	ErrIndex = errors.New("index error")
	// ErrQuery is returned for malformed queries at read time.
	ErrQuery = errors.New("query error")
	// ErrQueueClosed is returned by Dequeue once a run's queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
)
