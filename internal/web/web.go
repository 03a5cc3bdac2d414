// Package web embeds the page served at the front-end root.
package web

import (
	_ "embed"
)

//go:embed index.html
var indexHTML []byte

// Index returns a copy of the page template.
func Index() []byte {
	return append([]byte(nil), indexHTML...)
}
