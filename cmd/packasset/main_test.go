package main

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestMediaType(t *testing.T) {
	cases := map[string]string{
		"src/index.html":  "text/html",
		"src/main.CSS":    "text/css",
		"src/main.js":     "text/javascript",
		"src/favicon.ico": "",
	}
	for in, want := range cases {
		if got := mediaType(in); got != want {
			t.Errorf("mediaType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMinifyAndCompress(t *testing.T) {
	src := []byte("body {\n  margin: 0;\n}\n")
	small, err := minifyAsset("text/css", src)
	if err != nil {
		t.Fatal(err)
	}
	if len(small) >= len(src) {
		t.Fatalf("minified %q is not smaller", small)
	}

	packed, err := compress(small)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, small) {
		t.Fatalf("round trip = %q, want %q", got, small)
	}

	again, _ := compress(small)
	if !bytes.Equal(packed, again) {
		t.Fatal("compression is not reproducible")
	}
}
