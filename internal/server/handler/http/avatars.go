package http

import (
	"context"
	"fmt"
	"hash/fnv"
	"html"
	"net/http"

	"github.com/couplegram/couplegram/internal/gateway"
)

var avatarPalette = []string{
	"#1e88e5", "#43a047", "#e53935", "#8e24aa",
	"#fb8c00", "#00897b", "#3949ab", "#6d4c41",
}

const avatarSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 100 100">` +
	`<rect width="100" height="100" fill="%s"/>` +
	`<text x="50" y="50" dy=".35em" text-anchor="middle" font-family="sans-serif" font-size="40" fill="#ffffff">%s</text>` +
	`</svg>`

// Initials handles GET /v1/avatars/initials?name=. The background colour is
// stable per name.
func Initials(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	bg := avatarPalette[h.Sum32()%uint32(len(avatarPalette))]

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = fmt.Fprintf(w, avatarSVG, bg, html.EscapeString(gateway.Initials(name)))
}

// Health answers GET /healthz, failing with 503 when ping does.
func Health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	}
}
