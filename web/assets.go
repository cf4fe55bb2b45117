// Package web holds the dashboard's templates and static files.
//
// Both are embedded at build time. During development, if web/static
// exists on disk it is served instead so edits show up without a rebuild.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed templates/*.html static/*
var assets embed.FS

// GetStatic returns the static file tree (scripts and styles). If devPath
// names a directory on disk it is used instead of the embedded copy. An
// empty devPath checks ./web/static.
func GetStatic(devPath string) fs.FS {
	if devPath == "" {
		devPath = filepath.Join("web", "static")
	}
	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}

	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic("failed to access embedded static assets: " + err.Error())
	}
	return sub
}

// Templates parses the embedded page templates. The set defines "index",
// "login" and the "dashboard" partial.
func Templates() (*template.Template, error) {
	return template.New("web").ParseFS(assets, "templates/*.html")
}
