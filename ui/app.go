// Package ui serves the embedded API reference under /docs. Pages are
// markdown rendered to HTML once at startup.
package ui

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

//go:embed templates/*.html content/*.md
var embeddedFiles embed.FS

// Prefix is where the docs router is mounted
const Prefix = "/docs"

// Topic is one documentation page
type Topic struct {
	Name    string
	Title   string
	Route   string
	Summary string
}

type page struct {
	Title  string
	Topic  *Topic
	Topics []Topic
	Body   template.HTML
}

// App is the documentation site
type App struct {
	router    *chi.Mux
	templates *template.Template
	topics    []Topic
	index     template.HTML
	pages     map[string]template.HTML
}

// NewApp renders the markdown for every topic and builds the router.
// Topics without a markdown page show only their summary.
func NewApp(topics []Topic) (*App, error) {
	templates, err := template.New("").ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	index, err := renderFile("index")
	if err != nil {
		return nil, fmt.Errorf("failed to render docs index: %w", err)
	}

	a := &App{
		router:    chi.NewRouter(),
		templates: templates,
		topics:    topics,
		index:     index,
		pages:     make(map[string]template.HTML, len(topics)),
	}
	for _, t := range topics {
		body, err := renderFile(t.Name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to render docs page %s: %w", t.Name, err)
		}
		a.pages[t.Name] = body
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

// ServeHTTP makes the app mountable in any router
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
	a.router.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
}

func (a *App) setupRoutes() {
	a.router.Get(Prefix, a.handleIndex)
	a.router.Get(Prefix+"/", a.handleIndex)
	a.router.Get(Prefix+"/{topic}", a.handleTopic)
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.render(w, page{Title: "MedStat API", Topics: a.topics, Body: a.index})
}

func (a *App) handleTopic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "topic")
	for i := range a.topics {
		if a.topics[i].Name == name {
			t := a.topics[i]
			a.render(w, page{Title: t.Title, Topic: &t, Topics: a.topics, Body: a.pages[name]})
			return
		}
	}
	http.NotFound(w, r)
}

func (a *App) render(w http.ResponseWriter, p page) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, "layout.html", p); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderFile(name string) (template.HTML, error) {
	src, err := fs.ReadFile(embeddedFiles, path.Join("content", name+".md"))
	if err != nil {
		return "", err
	}
	return Render(src), nil
}

// Render converts markdown to HTML. Parsers hold per-document state so a
// new one is built for each call.
func Render(src []byte) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	return template.HTML(markdown.ToHTML(src, p, renderer))
}
