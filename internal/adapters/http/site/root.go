// Package site serves the embedded live dashboard: open games, a role
// leaderboard and the event stream.
package site

import "net/http"

// Register attaches the dashboard routes to mux. The page is served at the
// exact root only so unknown paths still 404.
func Register(mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("GET /static/", http.StripPrefix("/static", files))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticFS, "static/index.html")
	})
}
