package pipeline

import "strings"

// Document assembles the LaTeX wrapper around a snippet body: a fixed
// article preamble, one \usepackage per package and an empty page style.
func Document(packages []string, body string) string {
	var b strings.Builder
	b.WriteString("\\documentclass[letterpaper,dvips]{article}\n")
	for _, pkg := range packages {
		pkg = strings.ReplaceAll(pkg, " ", "")
		if pkg == "" {
			continue
		}
		b.WriteString("\\usepackage{")
		b.WriteString(pkg)
		b.WriteString("}\n")
	}
	b.WriteString("\\begin{document}\n\\pagestyle{empty}\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("\\end{document}\n")
	return b.String()
}
