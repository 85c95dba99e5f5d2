// Package keypath interprets flat object keys as a virtual hierarchy using
// "/" as the separator. A key ending in "/" names a folder.
package keypath

import "strings"

const Separator = "/"

// IsFolder reports whether key names a folder (it ends with "/").
func IsFolder(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// BaseName returns the last path segment of key. For a folder key the
// trailing slash is retained:
//
//	"a/b/c.txt" -> "c.txt"
//	"a/b/"      -> "b/"
//	"file.txt"  -> "file.txt"
func BaseName(key string) string {
	if IsFolder(key) {
		trimmed := strings.TrimSuffix(key, Separator)
		return trimmed[strings.LastIndex(trimmed, Separator)+1:] + Separator
	}
	return key[strings.LastIndex(key, Separator)+1:]
}

// ParentPrefix returns the prefix of the folder containing key, including
// its trailing slash. Top-level keys have the root prefix "".
//
//	"a/b/c.txt" -> "a/b/"
//	"a/b/"      -> "a/"
//	"file.txt"  -> ""
func ParentPrefix(key string) string {
	trimmed := strings.TrimSuffix(key, Separator)
	idx := strings.LastIndex(trimmed, Separator)
	if idx == -1 {
		return ""
	}
	return key[:idx+1]
}

// AsFolder returns key with a trailing slash appended if it has none.
// The empty key stays empty.
func AsFolder(key string) string {
	if key == "" || IsFolder(key) {
		return key
	}
	return key + Separator
}

// Rebase moves key from under oldPrefix to under newPrefix, preserving the
// remainder of the key. It reports false when key is not under oldPrefix.
func Rebase(key, oldPrefix, newPrefix string) (string, bool) {
	if !strings.HasPrefix(key, oldPrefix) {
		return "", false
	}
	return newPrefix + key[len(oldPrefix):], true
}

// Within reports whether key lies strictly inside the folder prefix. A
// folder is not within itself.
func Within(key, prefix string) bool {
	return IsFolder(prefix) && len(key) > len(prefix) && strings.HasPrefix(key, prefix)
}
