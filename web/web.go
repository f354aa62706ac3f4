// Package web embeds the participant-facing browser page.
package web

import "embed"

// Assets holds the embedded page.
//
//go:embed index.html
var Assets embed.FS
