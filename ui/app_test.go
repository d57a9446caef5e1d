package ui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopics() []Topic {
	return []Topic{
		{Name: "ttest", Title: "t-test", Route: "/api/clinical/ttest", Summary: "Two-sample comparison"},
		{Name: "undocumented", Title: "Other", Route: "/api/other", Summary: "No page yet"},
	}
}

func TestDocsIndex(t *testing.T) {
	app, err := NewApp(testTopics())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `<h2 id="errors">Errors</h2>`)
	assert.Contains(t, rec.Body.String(), `href="/docs/ttest"`)
}

func TestDocsTopic(t *testing.T) {
	app, err := NewApp(testTopics())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/ttest", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "POST /api/clinical/ttest")
	assert.Contains(t, rec.Body.String(), "<table>")

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/undocumented", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No page yet")

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRender(t *testing.T) {
	out := string(Render([]byte("# Title\n\nSee [site](https://example.org).")))
	assert.Contains(t, out, `<h1 id="title">Title</h1>`)
	assert.Contains(t, out, `target="_blank"`)
}
