// Package source decodes delimited storm-event exports into typed rows.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"

	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/storm-data-seeder/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is a decoded data row with its 1-based position (header excluded).
type Row[T any] struct {
	Num   int
	Value T
}

// Reader decodes rows of type T from a CSV stream by header name.
// T must be a struct with csv tags.
type Reader[T any] struct {
	dec    *csvutil.Decoder
	closer io.Closer
}

// Open opens path and validates its header against required.
// The caller must Close the returned Reader.
func Open[T any](path string, required []string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	r, err := NewReader[T](f, required)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header from r and checks that every required column is
// present. A leading UTF-8 byte order mark is skipped.
func NewReader[T any](r io.Reader, required []string) (*Reader[T], error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.ReuseRecord = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.HeaderError{Missing: slices.Clone(required)}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	if missing := missingColumns(dec.Header(), required); len(missing) > 0 {
		return nil, &domain.HeaderError{Missing: missing}
	}

	return &Reader[T]{dec: dec}, nil
}

// Header returns the column names as read from the file.
func (r *Reader[T]) Header() []string {
	return r.dec.Header()
}

// Rows yields decoded rows in file order. A malformed line yields a
// *domain.ParseError and ends the sequence.
func (r *Reader[T]) Rows() iter.Seq2[Row[T], error] {
	return func(yield func(Row[T], error) bool) {
		for num := 1; ; num++ {
			var v T
			err := r.dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Row[T]{Num: num}, &domain.ParseError{Row: num, Field: fieldOf(err), Err: err})
				return
			}
			if !yield(Row[T]{Num: num, Value: v}, nil) {
				return
			}
		}
	}
}

// Close releases the underlying file, if any.
func (r *Reader[T]) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func missingColumns(header, required []string) []string {
	var missing []string
	for _, col := range required {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	return missing
}

func fieldOf(err error) string {
	var decErr *csvutil.DecodeError
	if errors.As(err, &decErr) {
		return decErr.Field
	}
	return "*"
}
