package site

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Page is a Markdown source page.
type Page struct {
	// Rel is the slash-separated path relative to the source root.
	Rel         string
	Frontmatter []byte
	Body        []byte
	Fields      map[string]any
}

// PageReport describes one rendered page.
type PageReport struct {
	Source      string `json:"source"`
	Output      string `json:"output"`
	Title       string `json:"title"`
	Fingerprint string `json:"fingerprint"`
	Snippets    int    `json:"snippets"`
}

var errMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// ParsePage separates YAML frontmatter (--- delimited) from the Markdown body.
func ParsePage(rel string, content []byte) (Page, error) {
	p := Page{Rel: rel, Body: content, Fields: map[string]any{}}
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		p.Body = content
		return p, nil
	}
	rest := content[len("---\n"):]
	if bytes.HasPrefix(rest, []byte("---\n")) {
		p.Frontmatter = []byte{}
		p.Body = rest[len("---\n"):]
		return p, nil
	}
	idx := bytes.Index(rest, []byte("\n---\n"))
	if idx < 0 {
		return Page{}, errMissingClosingDelimiter
	}
	p.Frontmatter = rest[:idx+1]
	p.Body = rest[idx+len("\n---\n"):]
	if err := yaml.Unmarshal(p.Frontmatter, &p.Fields); err != nil {
		return Page{}, err
	}
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	return p, nil
}

// Title returns the frontmatter title, or one derived from the file name.
func (p Page) Title() string {
	if t, ok := p.Fields["title"].(string); ok && strings.TrimSpace(t) != "" {
		return t
	}
	stem := strings.TrimSuffix(filepath.Base(p.Rel), filepath.Ext(p.Rel))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return cases.Title(language.English).String(stem)
}

// Fingerprint returns the mdfp content fingerprint of the source page.
func (p Page) Fingerprint() string {
	fm := strings.TrimSuffix(string(p.Frontmatter), "\n")
	return mdfp.CalculateFingerprintFromParts(fm, string(p.Body))
}

// OutputRel returns the slash-separated publish path of the page.
func (p Page) OutputRel() string {
	return strings.TrimSuffix(p.Rel, filepath.Ext(p.Rel)) + ".html"
}

// markdownRenderer passes raw HTML through so expanded tags survive.
var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
{{ .Content }}
</body>
</html>
`))

// RenderPage expands latex tags in the page body and renders the result to a
// complete HTML document.
func RenderPage(ctx context.Context, p Page, r TagRenderer) ([]byte, PageReport, error) {
	expanded, n, err := ExpandTags(ctx, p.Rel, string(p.Body), r)
	if err != nil {
		return nil, PageReport{}, err
	}

	var content bytes.Buffer
	if err := markdownRenderer.Convert([]byte(expanded), &content); err != nil {
		return nil, PageReport{}, err
	}

	var out bytes.Buffer
	// #nosec G203 -- content is the page's own rendered Markdown
	err = pageTemplate.Execute(&out, struct {
		Title   string
		Content template.HTML
	}{Title: p.Title(), Content: template.HTML(content.String())})
	if err != nil {
		return nil, PageReport{}, err
	}

	return out.Bytes(), PageReport{
		Source:      p.Rel,
		Output:      p.OutputRel(),
		Title:       p.Title(),
		Fingerprint: p.Fingerprint(),
		Snippets:    n,
	}, nil
}
