// packasset minifies a web asset and writes it gzip-compressed, ready to be
// embedded and served with Content-Encoding: gzip.
package main

import (
	"bytes"
	"compress/gzip"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	mcss "github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	mjs "github.com/tdewolff/minify/v2/js"
)

func main() {
	in := flag.String("in", "", "Source file")
	out := flag.String("out", "", "Output file path (written relative to the generator file's directory)")
	noMinify := flag.Bool("no-minify", false, "Only compress")
	flag.Parse()

	if *in == "" || *out == "" {
		fatalf("usage: packasset -in=<file> -out=<file.gz> [-no-minify]")
	}

	src, err := os.ReadFile(*in)
	if err != nil {
		fatalf("read: %v", err)
	}

	body := src
	if mediatype := mediaType(*in); mediatype != "" && !*noMinify {
		body, err = minifyAsset(mediatype, src)
		if err != nil {
			fatalf("minify %s: %v", *in, err)
		}
	}

	packed, err := compress(body)
	if err != nil {
		fatalf("gzip: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil && filepath.Dir(*out) != "." {
		fatalf("mkdir: %v", err)
	}
	if err := writeFileAtomic(*out, packed, 0o644); err != nil {
		fatalf("write: %v", err)
	}
	fmt.Printf("Wrote: %s (%d -> %d -> %d bytes)\n", *out, len(src), len(body), len(packed))
}

func mediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "text/javascript"
	default:
		return ""
	}
}

func minifyAsset(mediatype string, src []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/html", mhtml.Minify)
	m.AddFunc("text/css", mcss.Minify)
	m.AddFunc("text/javascript", mjs.Minify)
	var out bytes.Buffer
	if err := m.Minify(mediatype, &out, bytes.NewReader(src)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// compress writes a gzip stream without name or timestamp so that
// regenerating unchanged sources gives identical bytes.
func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	f, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
