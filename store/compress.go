package store

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// pageSize is the fixed chunk size the compressor streams the buffer in.
const pageSize = 128

// Compress deflates data, streaming it through the compressor in fixed-size
// pages. Round-tripping through Decompress is lossless; typical playlist text
// shrinks by more than half.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	for len(data) > 0 {
		page := data
		if len(page) > pageSize {
			page = page[:pageSize]
		}
		if _, err := w.Write(page); err != nil {
			return nil, fmt.Errorf("compress page: %w", err)
		}
		data = data[len(page):]
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flush compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a buffer produced by Compress, reading it back in the
// same fixed-size pages.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var out bytes.Buffer
	page := make([]byte, pageSize)
	for {
		n, err := r.Read(page)
		out.Write(page[:n])
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("decompress page: %w", err)
		}
	}
}
