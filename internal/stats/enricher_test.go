package stats

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
	collyfetcher "github.com/JakeFAU/cnblogs-search/internal/fetcher/colly"
)

type fakeFetcher struct {
	body []byte
	err  error
	last crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.last = req
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	return crawler.FetchResponse{StatusCode: http.StatusOK, Body: f.body}, nil
}

func TestEnrichPicksMatchingPost(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{body: []byte(`[
		{"postId":1,"viewCount":5,"feedbackCount":1,"diggCount":0,"buryCount":0},
		{"postId":12345,"viewCount":310,"feedbackCount":4,"diggCount":7,"buryCount":1}
	]`)}
	e := New(f, Config{BaseURL: "https://site/"})

	got, err := e.Enrich(context.Background(), "12345", "alice")
	require.NoError(t, err)
	require.Equal(t, &crawler.EngagementStats{
		ID:             "12345",
		ViewCount:      310,
		CommentCount:   4,
		RecommendCount: 7,
		OpposeCount:    1,
	}, got)
	require.Equal(t, "https://site/alice/ajax/GetPostStat", f.last.URL)
	require.Equal(t, http.MethodPost, f.last.Method)
	require.Equal(t, "[12345]", string(f.last.Body))
}

func TestEnrichNonNumericIDIsQuoted(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{body: []byte(`[{"viewCount":2}]`)}
	e := New(f, Config{BaseURL: "https://site"})

	got, err := e.Enrich(context.Background(), "go-tips", "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ViewCount)
	require.Equal(t, "go-tips", got.ID)
	require.Equal(t, `["go-tips"]`, string(f.last.Body))
}

func TestEnrichAbsenceCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fetcher *fakeFetcher
		wantErr error
	}{
		{name: "empty body", fetcher: &fakeFetcher{body: []byte("  ")}},
		{name: "empty array", fetcher: &fakeFetcher{body: []byte("[]")}},
		{
			name:    "other post only",
			fetcher: &fakeFetcher{body: []byte(`[{"postId":999,"viewCount":77,"feedbackCount":1,"diggCount":2,"buryCount":3}]`)},
		},
		{name: "malformed", fetcher: &fakeFetcher{body: []byte("<html>oops")}, wantErr: crawler.ErrParse},
		{
			name:    "transport",
			fetcher: &fakeFetcher{err: errors.Join(crawler.ErrTransport, errors.New("timeout"))},
			wantErr: crawler.ErrTransport,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := New(tc.fetcher, Config{BaseURL: "https://site"}).Enrich(context.Background(), "1", "alice")
			require.Nil(t, got)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEnrichEmptyIDSkipsCall(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	got, err := New(f, Config{}).Enrich(context.Background(), "", "alice")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, f.last.URL)
}

func TestEnrichOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.URL.Path != "/alice/ajax/GetPostStat" || string(body) != "[42]" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[{"postId":42,"viewCount":9,"feedbackCount":2,"diggCount":3,"buryCount":0}]`))
	}))
	defer srv.Close()

	e := New(collyfetcher.New(collyfetcher.Config{Timeout: time.Second}), Config{BaseURL: srv.URL, Timeout: time.Second})
	got, err := e.Enrich(context.Background(), "42", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(9), got.ViewCount)
	require.Equal(t, int64(2), got.CommentCount)
}

func TestEnrichWithoutIDsUsesFirstEntry(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{body: []byte(`[{"viewCount":11,"feedbackCount":3,"diggCount":1,"buryCount":0}]`)}
	got, err := New(f, Config{BaseURL: "https://site"}).Enrich(context.Background(), "7", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "7", got.ID)
	require.Equal(t, int64(11), got.ViewCount)
	require.Equal(t, int64(3), got.CommentCount)
}
