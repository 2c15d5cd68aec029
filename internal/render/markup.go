package render

import (
	"path"
	"strings"

	"golang.org/x/net/html"
)

// FallbackPreamble introduces the source of a snippet that failed to render.
const FallbackPreamble = "Failed to render the following block of LaTeX:<br/>\n"

// ImageTag returns the <img> element for a rendered artifact.
func ImageTag(outputDirectory, name, classes string) string {
	src := path.Join(strings.ReplaceAll(outputDirectory, "\\", "/"), name)
	return `<img src="` + html.EscapeString(src) + `" class="` + html.EscapeString(classes) + `"/>`
}

// FallbackBlock returns the escaped source block shown in place of a failed image.
func FallbackBlock(snippet string) string {
	return FallbackPreamble + "<pre><code>" + html.EscapeString(snippet) + "</code></pre>"
}
