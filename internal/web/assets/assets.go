// Package assets holds the provisioning UI, minified and gzip-compressed.
package assets

import (
	"embed"
	"io/fs"
)

//go:generate -command pack go run ../../../cmd/packasset
//go:generate pack -in=src/index.html -out=index.html.gz
//go:generate pack -in=src/main.css -out=main.css.gz
//go:generate pack -in=src/main.js -out=main.js.gz
//go:generate pack -in=src/favicon.ico -out=favicon.ico.gz

//go:embed *.gz
var files embed.FS

// Asset is one pre-compressed file served at Path.
type Asset struct {
	Path        string
	File        string
	ContentType string
}

var All = []Asset{
	{Path: "/", File: "index.html.gz", ContentType: "text/html; charset=utf-8"},
	{Path: "/main.css", File: "main.css.gz", ContentType: "text/css; charset=utf-8"},
	{Path: "/main.js", File: "main.js.gz", ContentType: "application/javascript; charset=utf-8"},
	{Path: "/favicon.ico", File: "favicon.ico.gz", ContentType: "image/x-icon"},
}

// Read returns the compressed bytes of a file.
func Read(name string) ([]byte, error) {
	return fs.ReadFile(files, name)
}
