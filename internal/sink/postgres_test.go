package sink

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

func TestPostgresSinkPutInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "page_results")
	require.NoError(t, err)

	result := crawler.PageResult{
		Kind:       crawler.PageKindMarkdownDoc,
		URL:        "https://example.com/a",
		FinalURL:   "https://example.com/a",
		StatusCode: 200,
		FetchedAt:  time.Unix(1700000000, 0).UTC(),
		Markdown:   "# Hello",
		Title:      "Hello",
	}

	mock.ExpectExec("INSERT INTO page_results").
		WithArgs(result.URL, result.FinalURL, 0, 200, "markdown_doc", "",
			"Hello", false, result.FetchedAt, int64(0),
			[]byte("null"), "# Hello", 0, 0, 0, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Put(context.Background(), result)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkRejectsInvalidTableName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresSinkWithPool(mock, "bad; drop table x")
	require.Error(t, err)
}
