// Package web provides the embedded browser UI of the mood player.
package web

import "embed"

// TemplatesFS contains the embedded HTML templates.
//
//go:embed all:templates
var TemplatesFS embed.FS

// StaticFS contains the embedded static assets (CSS, JS, images).
//
//go:embed all:static
var StaticFS embed.FS
