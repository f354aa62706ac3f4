package webserver

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/parkerlabs/dilemma/internal/webapi"
	"github.com/parkerlabs/dilemma/web"
)

// registerRoutes sets up API and static page routes on the given mux.
func registerRoutes(mux *http.ServeMux, cfg Config) error {
	webapi.RegisterRoutes(mux, cfg.Bridge)

	handler, err := pageHandler()
	if err != nil {
		return fmt.Errorf("failed to initialize page handler: %w", err)
	}
	mux.Handle("/", handler)
	return nil
}

// pageHandler serves the embedded participant page. Every non-API path gets
// index.html; the page itself is a single file.
func pageHandler() (http.Handler, error) {
	index, err := fs.ReadFile(web.Assets, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded page: %w", err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(index) //nolint:errcheck
	}), nil
}
