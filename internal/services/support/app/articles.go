package app

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

//go:embed articles/*.md
var articleFS embed.FS

// Raw HTML in articles is escaped; WithUnsafe is not set.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// ErrArticleNotFound is returned for an unknown slug.
var ErrArticleNotFound = apperrors.New(apperrors.CodeNotFound, "Article not found")

// Article is one help center page.
type Article struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	HTML    string `json:"html,omitempty"`
}

// Library holds the rendered help center.
type Library struct {
	articles []Article
	bySlug   map[string]int
}

// LoadLibrary renders every embedded article.
func LoadLibrary() (*Library, error) {
	return loadLibrary(articleFS, "articles")
}

func loadLibrary(fsys fs.FS, root string) (*Library, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	lib := &Library{bySlug: map[string]int{}}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		source, err := fs.ReadFile(fsys, path.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read article %s: %w", entry.Name(), err)
		}
		var rendered bytes.Buffer
		if err := markdown.Convert(source, &rendered); err != nil {
			return nil, fmt.Errorf("render article %s: %w", entry.Name(), err)
		}
		title, summary := headline(source)
		lib.articles = append(lib.articles, Article{
			Slug:    strings.TrimSuffix(entry.Name(), ".md"),
			Title:   title,
			Summary: summary,
			HTML:    rendered.String(),
		})
	}
	sort.Slice(lib.articles, func(i, j int) bool { return lib.articles[i].Title < lib.articles[j].Title })
	for i, a := range lib.articles {
		lib.bySlug[a.Slug] = i
	}
	return lib, nil
}

// headline returns the "# " title and the first paragraph line.
func headline(source []byte) (string, string) {
	var title, summary string
	scanner := bufio.NewScanner(bytes.NewReader(source))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if summary != "" {
				return title, summary
			}
		case title == "" && strings.HasPrefix(line, "# "):
			title = strings.TrimPrefix(line, "# ")
		case title != "":
			if summary != "" {
				summary += " "
			}
			summary += line
		}
	}
	return title, summary
}

// List returns every article without its body.
func (l *Library) List() []Article {
	out := make([]Article, 0, len(l.articles))
	for _, a := range l.articles {
		a.HTML = ""
		out = append(out, a)
	}
	return out
}

// Get returns one rendered article.
func (l *Library) Get(slug string) (Article, error) {
	idx, ok := l.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Article{}, ErrArticleNotFound
	}
	return l.articles[idx], nil
}
