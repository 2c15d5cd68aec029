package site

import (
	"context"
	"regexp"
	"strings"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

var (
	latexBlock = regexp.MustCompile(`(?s)\{%-?\s*latex\b(.*?)-?%\}(.*?)\{%-?\s*endlatex\s*-?%\}`)
	latexOpen  = regexp.MustCompile(`\{%-?\s*latex\b`)
)

// ExpandTags replaces every latex block in body with the renderer's output
// and returns the expanded text with the number of blocks found. An opening
// tag without a matching endlatex is a validation error.
func ExpandTags(ctx context.Context, page, body string, r TagRenderer) (string, int, error) {
	matches := latexBlock.FindAllStringSubmatchIndex(body, -1)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(body[last:m[0]])
		if latexOpen.MatchString(body[last:m[0]]) {
			return "", 0, unterminated(page)
		}
		out, err := r.RenderTag(ctx, page, body[m[2]:m[3]], body[m[4]:m[5]])
		if err != nil {
			return "", 0, err
		}
		b.WriteString(out)
		last = m[1]
	}
	if latexOpen.MatchString(body[last:]) {
		return "", 0, unterminated(page)
	}
	b.WriteString(body[last:])
	return b.String(), len(matches), nil
}

func unterminated(page string) error {
	return ferrors.ValidationError("latex tag without matching endlatex").
		WithContext("page", page).
		Build()
}
