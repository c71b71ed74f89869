package web

import "embed"

// Templates embeds HTML templates for supplier pages and outgoing mail.
//
//go:embed templates/*/*.html
var Templates embed.FS
