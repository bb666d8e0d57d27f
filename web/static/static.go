// Package static holds the browser assets served under /static.
package static

import "embed"

//go:embed app.js app.css
var Files embed.FS
