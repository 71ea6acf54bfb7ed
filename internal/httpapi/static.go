package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/index.html static/app.js static/app.css
var uiAssets embed.FS

// newStaticHandler serves the kiosk page that hosts browser speech.
func newStaticHandler() http.Handler {
	root, err := fs.Sub(uiAssets, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
