// Package repo materializes repositories on local disk and walks them.
package repo

import (
	"path/filepath"
	"strings"
)

// Repository types.
const (
	TypeGitHub    = "github"
	TypeGitLab    = "gitlab"
	TypeBitbucket = "bitbucket"
	TypeLocal     = "local"
)

var hosts = []struct {
	host string
	typ  string
}{
	{"github.com", TypeGitHub},
	{"gitlab.com", TypeGitLab},
	{"bitbucket.org", TypeBitbucket},
}

// ParseURL extracts owner, repository name and type from a repository URL.
// Unknown hosts are treated as GitHub, using the last two path segments.
// Missing segments come back empty.
func ParseURL(url string) (owner, name, repoType string) {
	trimmed := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	for _, h := range hosts {
		if idx := strings.Index(trimmed, h.host+"/"); idx >= 0 {
			parts := strings.Split(trimmed[idx+len(h.host)+1:], "/")
			return segment(parts, 0), segment(parts, 1), h.typ
		}
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		parts = parts[len(parts)-2:]
	}
	if len(parts) == 1 {
		return "", parts[0], TypeGitHub
	}
	return segment(parts, 0), segment(parts, 1), TypeGitHub
}

func segment(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

// DetectType returns the repository type implied by the URL host, or
// "local" for absolute filesystem paths.
func DetectType(url string) string {
	if filepath.IsAbs(url) {
		return TypeLocal
	}
	_, _, t := ParseURL(url)
	return t
}
