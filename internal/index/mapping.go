// Package index owns the persisted full-text index: its field mapping and the
// single serialized writer that upserts canonical documents into it.
package index

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Persisted field names.
const (
	FieldID               = "ID"
	FieldTitle            = "TITLE"
	FieldContent          = "CONTENT"
	FieldAuthor           = "AUTHOR"
	FieldTags             = "TAGS"
	FieldPublishTime      = "PUBLISH_TIME"
	FieldPublishTimeStore = "PUBLISH_TIME_STORE"
	FieldURL              = "URL"
	FieldViewCount        = "VIEW_COUNT"
	FieldCommentCount     = "COMMENT_COUNT"
	FieldRecommendCount   = "RECOMMEND_COUNT"
	FieldOpposeCount      = "OPPOSE_COUNT"
)

// NewMapping builds the static index mapping. Dynamic fields are disabled so
// only the names above are ever indexed.
func NewMapping() mapping.IndexMapping {
	doc := mapping.NewDocumentStaticMapping()

	for _, name := range []string{FieldID, FieldAuthor, FieldURL} {
		doc.AddFieldMappingsAt(name, exactField())
	}
	for _, name := range []string{FieldTitle, FieldContent, FieldTags} {
		doc.AddFieldMappingsAt(name, textField())
	}
	for _, name := range []string{FieldPublishTime, FieldViewCount, FieldCommentCount, FieldRecommendCount, FieldOpposeCount} {
		doc.AddFieldMappingsAt(name, numericField())
	}

	display := mapping.NewTextFieldMapping()
	display.Index = false
	display.Store = true
	display.IncludeInAll = false
	display.IncludeTermVectors = false
	doc.AddFieldMappingsAt(FieldPublishTimeStore, display)

	m := mapping.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	m.StoreDynamic = false
	m.IndexDynamic = false
	return m
}

func exactField() *mapping.FieldMapping {
	f := mapping.NewTextFieldMapping()
	f.Analyzer = keyword.Name
	f.Store = true
	f.IncludeTermVectors = false
	return f
}

func textField() *mapping.FieldMapping {
	f := mapping.NewTextFieldMapping()
	f.Analyzer = standard.Name
	f.Store = true
	return f
}

func numericField() *mapping.FieldMapping {
	f := mapping.NewNumericFieldMapping()
	f.Store = true
	f.IncludeInAll = false
	return f
}
