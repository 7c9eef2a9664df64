package repo

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// excludedDirs are skipped by every listing regardless of pattern.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"build":        true,
	"dist":         true,
}

// Excluded reports whether a directory or file name is hidden from listings.
func Excluded(name string, isDir bool) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return isDir && excludedDirs[name]
}

// WalkFunc receives the slash-separated path relative to the root ("" for
// the root itself) and the entry.
type WalkFunc func(rel string, d fs.DirEntry) error

// WalkTree walks root, skipping excluded entries and never descending into
// excluded directories.
func WalkTree(root string, fn WalkFunc) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if rel != "" && Excluded(d.Name(), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(rel, d)
	})
}

// DirListing is one directory in a structure listing.
type DirListing struct {
	Directories []string `json:"directories"`
	Files       []string `json:"files"`
}

// Structure maps every visible directory (relative path, "" for the root)
// to its visible subdirectories and files.
func Structure(root string) (map[string]DirListing, error) {
	out := map[string]DirListing{}
	err := WalkTree(root, func(rel string, d fs.DirEntry) error {
		if d.IsDir() {
			if _, ok := out[rel]; !ok {
				out[rel] = DirListing{Directories: []string{}, Files: []string{}}
			}
			if rel == "" {
				return nil
			}
		}
		parent := path.Dir(rel)
		if parent == "." {
			parent = ""
		}
		entry := out[parent]
		if d.IsDir() {
			entry.Directories = append(entry.Directories, d.Name())
		} else {
			entry.Files = append(entry.Files, d.Name())
		}
		out[parent] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	for k, v := range out {
		sort.Strings(v.Directories)
		sort.Strings(v.Files)
		out[k] = v
	}
	return out, nil
}

// MatchFiles lists visible files whose relative path or base name matches
// the shell pattern. '*' crosses directory separators, so "src/*" lists
// nested files too. An empty pattern matches everything.
func MatchFiles(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	files := []string{}
	err = WalkTree(root, func(rel string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		if re.MatchString(rel) || re.MatchString(d.Name()) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// IsDir reports whether p exists and is a directory.
func IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
