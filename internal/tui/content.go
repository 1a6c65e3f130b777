package tui

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var ErrNotGzip = errors.New("not a gzip file")

const contentPrefix = "targz,"

// LoadContent reads a gzipped tarball and returns it in the form gostint
// injects into the container.
func LoadContent(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return EncodeContent(raw)
}

func EncodeContent(raw []byte) (string, error) {
	if !IsGzip(raw) {
		return "", ErrNotGzip
	}
	return contentPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// IsGzip checks for a readable gzip header, not just the magic bytes.
func IsGzip(raw []byte) bool {
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return false
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return false
	}
	_ = zr.Close()
	return true
}

// ContentSummary is shown next to the content field.
func ContentSummary(content string) string {
	if content == "" {
		return ""
	}
	n := base64.StdEncoding.DecodedLen(len(strings.TrimPrefix(content, contentPrefix)))
	return fmt.Sprintf("gzip tarball, ~%d bytes", n)
}
