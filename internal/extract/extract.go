// Package extract classifies fetched blog pages and pulls structured fields out
// of them. Everything here is a pure function of the page URL, the page body,
// and the site configuration.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

// Outcome is the result of classifying a page. It is one of ListingPage,
// ContentPage or Unclassified.
type Outcome interface {
	outcome()
}

// ListingPage is a post index page.
type ListingPage struct {
	DetailURLs []string
	// NextPageURL is empty when the page has no successor.
	NextPageURL string
}

// ContentPage is a single post.
type ContentPage struct {
	Record crawler.ExtractedRecord
}

// Unclassified is any page matching neither URL pattern.
type Unclassified struct {
	URL    string
	Reason string
}

func (ListingPage) outcome()  {}
func (ContentPage) outcome()  {}
func (Unclassified) outcome() {}

// Selectors are the CSS selectors used against listing and content pages.
type Selectors struct {
	PostLinks   string `mapstructure:"post_links"`
	NextPage    string `mapstructure:"next_page"`
	Title       string `mapstructure:"title"`
	PublishTime string `mapstructure:"publish_time"`
	Content     string `mapstructure:"content"`
	Tags        string `mapstructure:"tags"`
}

// DefaultSelectors matches the cnblogs.com post and listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		PostLinks:   "div.forFlow div.postTitle a",
		NextPage:    "#nav_next a",
		Title:       "div.post h1.postTitle span",
		PublishTime: "div.postDesc #post-date",
		Content:     "div.post #cnblogs_post_body",
		Tags:        "#EntryTag a",
	}
}

// Site holds the URL patterns that decide a page's role.
type Site struct {
	ListPrefix   string
	DetailPrefix string
	DetailSuffix string
	// Author is the blogger id, constant for a crawl run.
	Author    string
	Selectors Selectors
}

// NewSite derives the cnblogs URL layout for one blogger.
//
//	listing: {base}/{blogger}/default.html?page=N
//	content: {base}/{blogger}/p/{id}.html
func NewSite(baseURL, bloggerID string, selectors Selectors) Site {
	base := strings.TrimRight(baseURL, "/")
	return Site{
		ListPrefix:   base + "/" + bloggerID + "/default.html",
		DetailPrefix: base + "/" + bloggerID + "/p/",
		DetailSuffix: ".html",
		Author:       bloggerID,
		Selectors:    selectors,
	}
}

// SeedURL returns the first listing page of the site.
func (s Site) SeedURL() string {
	return s.ListPrefix + "?page=1"
}

// Extractor classifies pages for a single Site.
type Extractor struct {
	site Site
}

// New creates an Extractor.
func New(site Site) *Extractor {
	return &Extractor{site: site}
}

// Site returns the configured site layout.
func (e *Extractor) Site() Site {
	return e.site
}

// Classify decides the page role from its URL and extracts the fields for
// that role. Empty selector matches yield empty values, never errors.
func (e *Extractor) Classify(pageURL string, body []byte) Outcome {
	switch {
	case strings.HasPrefix(pageURL, e.site.ListPrefix):
		doc, err := parse(body)
		if err != nil {
			return ListingPage{DetailURLs: []string{}}
		}
		return e.listing(pageURL, doc)
	case strings.HasPrefix(pageURL, e.site.DetailPrefix):
		doc, err := parse(body)
		if err != nil {
			doc, _ = parse(nil)
		}
		return ContentPage{Record: e.content(pageURL, doc)}
	default:
		return Unclassified{URL: pageURL, Reason: "url matches neither listing nor detail prefix"}
	}
}

// DeriveID strips the detail prefix, any query or fragment, and the detail
// suffix from a content URL.
func (e *Extractor) DeriveID(pageURL string) string {
	rest := strings.TrimPrefix(pageURL, e.site.DetailPrefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSuffix(rest, e.site.DetailSuffix)
}

func (e *Extractor) listing(pageURL string, doc *goquery.Document) ListingPage {
	sel := e.site.Selectors
	out := ListingPage{DetailURLs: []string{}}
	doc.Find(sel.PostLinks).Each(func(_ int, s *goquery.Selection) {
		if href := resolve(pageURL, s.AttrOr("href", "")); href != "" {
			out.DetailURLs = append(out.DetailURLs, href)
		}
	})
	out.NextPageURL = resolve(pageURL, doc.Find(sel.NextPage).First().AttrOr("href", ""))
	return out
}

func (e *Extractor) content(pageURL string, doc *goquery.Document) crawler.ExtractedRecord {
	sel := e.site.Selectors
	rec := crawler.ExtractedRecord{
		ID:              e.DeriveID(pageURL),
		Title:           strings.TrimSpace(doc.Find(sel.Title).First().Text()),
		PublishTimeText: strings.TrimSpace(doc.Find(sel.PublishTime).First().Text()),
		Tags:            []string{},
		Author:          e.site.Author,
		URL:             pageURL,
	}
	if body := doc.Find(sel.Content).First(); body.Length() > 0 {
		if html, err := goquery.OuterHtml(body); err == nil {
			rec.RawContentHTML = html
		}
	}
	doc.Find(sel.Tags).Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			rec.Tags = append(rec.Tags, tag)
		}
	})
	return rec
}

func parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
