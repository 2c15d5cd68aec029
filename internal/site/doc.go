// Package site is the minimal static-site host around the latex tag: it
// expands {% latex %} blocks in Markdown pages, renders the pages to HTML,
// copies static files (including the artifact directory) to the publish tree
// and finally runs the registered build-complete hooks.
package site
