// Package web provides the embedded motion-builder page.
//
// The dist/ directory is embedded at build time. During development,
// if dist/ exists on the filesystem, it is served instead so the page
// can be edited without rebuilding the binary.
package web

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed dist/*
var assets embed.FS

// GetAssets returns a filesystem containing the web client assets.
// When devPath exists as a directory it is returned as a live filesystem,
// otherwise the embedded assets are used.
//
// If devPath is empty, it defaults to "./web/dist" (relative to the
// working directory).
func GetAssets(devPath string) fs.FS {
	if devPath == "" {
		devPath = "./web/dist"
	}

	if stat, err := os.Stat(devPath); err == nil && stat.IsDir() {
		return os.DirFS(devPath)
	}

	subFS, err := fs.Sub(assets, "dist")
	if err != nil {
		panic("failed to access embedded web assets: " + err.Error())
	}
	return subFS
}

// GetAssetsWithBase checks for development assets under baseDir/web/dist.
func GetAssetsWithBase(baseDir string) fs.FS {
	return GetAssets(filepath.Join(baseDir, "web", "dist"))
}
