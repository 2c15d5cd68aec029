package render

import (
	"strings"

	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// Options are the per-snippet overrides given on the opening tag.
type Options struct {
	// Density overrides the global density when non-empty.
	Density string
	// UsePackages are appended to the global package list.
	UsePackages []string
	// Classes overrides the global CSS classes when non-empty.
	Classes string
	// Unknown lists keys that were given but are not recognized.
	Unknown []string
}

// ParseOptions parses whitespace-separated key=value tokens. Every token must
// contain exactly one '=' with a non-empty key and value; anything else is a
// validation error. A repeated key keeps its last value.
func ParseOptions(raw string) (Options, error) {
	var opts Options
	for _, token := range strings.Fields(raw) {
		key, value, ok := strings.Cut(token, "=")
		if !ok || strings.Contains(value, "=") || key == "" || value == "" {
			return Options{}, ferrors.ValidationError("syntax error in tag 'latex': expected key=value").
				WithContext("token", token).
				Build()
		}
		switch key {
		case "density":
			opts.Density = value
		case "usepackages":
			opts.UsePackages = config.SplitPackages(value)
		case "classes":
			opts.Classes = value
		default:
			opts.Unknown = append(opts.Unknown, key)
		}
	}
	return opts, nil
}
