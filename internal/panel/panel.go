package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// site serves one asset tree, answering unknown paths with index.html.
type site struct {
	files  http.FileSystem
	server http.Handler
}

// Handler returns the handler for the configuration page.
//
// A non-empty dir that exists replaces the embedded assets, so the page
// can be edited on a running adapter. Panics if the embedded assets are
// missing, which is a build error.
func Handler(dir string) http.Handler {
	files := diskFiles(dir)
	if files == nil {
		web, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
		}
		files = http.FS(web)
	}
	return &site{files: files, server: http.FileServer(files)}
}

func diskFiles(dir string) http.FileSystem {
	if dir == "" {
		return nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}
	return http.Dir(dir)
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The page is tiny and changes with firmware updates.
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")

	if !s.exists(r.URL.Path) {
		r = r.Clone(r.Context())
		r.URL.Path = "/"
	}
	s.server.ServeHTTP(w, r)
}

func (s *site) exists(name string) bool {
	name = path.Clean("/" + name)
	if name == "/" {
		return true
	}
	f, err := s.files.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
