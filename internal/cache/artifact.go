// Package cache implements the content-addressed artifact cache for rendered
// snippets and the build-scoped set of artifacts a build has used.
package cache

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/texcache/internal/fingerprint"
)

const (
	artifactPrefix = "latex-"
	artifactSuffix = ".png"

	// Pattern matches every cached artifact file name.
	Pattern = artifactPrefix + "*" + artifactSuffix
)

// Artifact is a cached image addressed by its fingerprint.
type Artifact struct {
	Fingerprint string
	// Name is the base file name, latex-<fingerprint>.png.
	Name string
	// Path is the absolute location under the cache source directory.
	Path string
}

// FileName returns the artifact file name for a fingerprint.
func FileName(fp string) string {
	return artifactPrefix + fp + artifactSuffix
}

// ParseFileName extracts the fingerprint from an artifact file name.
func ParseFileName(name string) (string, bool) {
	if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactSuffix) {
		return "", false
	}
	fp := strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactSuffix)
	if !fingerprint.Valid(fp) {
		return "", false
	}
	return fp, true
}

// NewArtifact builds the artifact descriptor for fp inside dir.
func NewArtifact(dir, fp string) Artifact {
	name := FileName(fp)
	return Artifact{Fingerprint: fp, Name: name, Path: filepath.Join(dir, name)}
}
