package assets

import _ "embed"

// DefaultStyle is the built-in tag to color table, used when no style file
// is configured.
//
// NOTE: go:embed patterns must not use ".." and must be relative to this file.
//
//go:embed styles/tags.txt
var DefaultStyle string
