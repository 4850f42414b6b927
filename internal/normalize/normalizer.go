// Package normalize converts extracted records into canonical index documents.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	"github.com/JakeFAU/cnblogs-search/internal/metrics"
)

// Site timestamp defaults ("2023-04-05 18:30", China Standard Time).
const (
	DefaultTimeLayout = "2006-01-02 15:04"
	DefaultTimeZone   = "Asia/Shanghai"
)

// Config controls timestamp parsing.
type Config struct {
	TimeLayout string
	TimeZone   string
}

// Normalizer turns ExtractedRecords into CanonicalDocuments.
type Normalizer struct {
	layout string
	loc    *time.Location
	logger *zap.Logger
}

// New builds a Normalizer, failing only if the time zone is unknown.
func New(cfg Config, logger *zap.Logger) (*Normalizer, error) {
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{layout: cfg.TimeLayout, loc: loc, logger: logger}, nil
}

// Normalize validates rec and maps it (plus optional stats) onto the canonical
// field set. A record without an id, or with neither title nor content, is
// rejected with ErrNormalization. An unparsable timestamp is only a warning:
// PublishTime becomes 0 and the raw text is kept for display.
func (n *Normalizer) Normalize(rec crawler.ExtractedRecord, stats *crawler.EngagementStats) (crawler.CanonicalDocument, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return crawler.CanonicalDocument{}, fmt.Errorf("%w: record from %q has no id", crawler.ErrNormalization, rec.URL)
	}
	title := strings.TrimSpace(rec.Title)
	content := htmlText(rec.RawContentHTML)
	if title == "" && content == "" {
		return crawler.CanonicalDocument{}, fmt.Errorf("%w: record %s has neither title nor content", crawler.ErrNormalization, id)
	}

	doc := crawler.CanonicalDocument{
		ID:      id,
		Title:   title,
		Content: content,
		Author:  rec.Author,
		URL:     rec.URL,
	}
	if len(rec.Tags) > 0 {
		doc.Tags = strings.Join(rec.Tags, ",")
		doc.HasTags = true
	}

	millis, display, err := n.parseTime(rec.PublishTimeText)
	if err != nil {
		n.logger.Warn("unparsable publish time",
			zap.String("doc_id", id),
			zap.String("raw", rec.PublishTimeText),
			zap.Error(err),
		)
		metrics.ObserveDataQuality("publish_time")
	}
	doc.PublishTime = millis
	doc.PublishTimeDisplay = display

	if stats != nil {
		s := *stats
		s.ID = id
		doc.Stats = &s
	}
	return doc, nil
}

func (n *Normalizer) parseTime(raw string) (int64, string, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.ParseInLocation(n.layout, raw, n.loc)
	if err != nil {
		return 0, raw, fmt.Errorf("%w: publish time %q: %w", crawler.ErrParse, raw, err)
	}
	return t.UnixMilli(), t.Format(n.layout), nil
}

// htmlText returns the visible text of an HTML fragment with whitespace collapsed.
func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script,style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
