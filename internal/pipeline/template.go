package pipeline

import (
	"strings"
)

// Vars are the values substituted into a stage command template.
type Vars struct {
	Density string
	TexFile string
	DviFile string
	EpsFile string
	PngFile string
	LogFile string
}

// Expand replaces the $-placeholders in tmpl. Values that are not plain
// shell words are single-quoted.
func Expand(tmpl string, v Vars) string {
	r := strings.NewReplacer(
		"$density", shellQuote(v.Density),
		"$texfile", shellQuote(v.TexFile),
		"$dvifile", shellQuote(v.DviFile),
		"$epsfile", shellQuote(v.EpsFile),
		"$pngfile", shellQuote(v.PngFile),
		"$logfile", shellQuote(v.LogFile),
	)
	return r.Replace(tmpl)
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool { return !isShellSafe(r) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_-./:=+,@%", r)
}
