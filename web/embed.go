// Package web embeds the server-rendered document layouts.
package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/*.html
var Templates embed.FS
