// Package source streams raw documents out of an encyclopedia XML dump. The
// dump is never loaded whole: an event-driven token decoder walks <page>
// elements and assembles title/body pairs into batches.
package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/xhad/distill/internal/models"
)

// Config controls batching and the streaming parse.
type Config struct {
	Path      string
	BatchSize int
}

// Source produces a lazy, finite, non-restartable sequence of RawDocument
// batches. It is not safe for concurrent use; the pipeline controller is the
// single consumer.
type Source struct {
	config  Config
	file    *os.File
	counted *countingReader
	closer  io.Closer // decompressor, when present
	decoder *xml.Decoder

	exhausted bool

	pagesSeen   atomic.Int64
	malformed   atomic.Int64
	parseFailed atomic.Int64
}

// Open opens the dump for streaming. Compression is chosen by extension:
// .gz and .zst stream through their decompressors, anything else is read as
// plain XML.
func Open(cfg Config) (*Source, error) {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}

	counted := &countingReader{r: f}
	var stream io.Reader = counted
	var closer io.Closer

	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".bz2", ".7z", ".xz":
		f.Close()
		return nil, fmt.Errorf("unsupported compression %q: recompress as gzip or zstd", filepath.Ext(cfg.Path))
	case ".gz":
		gz, err := gzip.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		stream = gz
		closer = gz
	case ".zst":
		zr, err := zstd.NewReader(counted)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		rc := zr.IOReadCloser()
		stream = rc
		closer = rc
	}

	return &Source{
		config:  cfg,
		file:    f,
		counted: counted,
		closer:  closer,
		decoder: xml.NewDecoder(stream),
	}, nil
}

// NextBatch returns the next batch of documents. The final batch may be
// partial; after it, io.EOF. Malformed pages are skipped and counted, never
// fatal. A syntax error in the underlying stream ends the sequence early but
// still delivers everything parsed so far.
func (s *Source) NextBatch() ([]models.RawDocument, error) {
	if s.exhausted {
		return nil, io.EOF
	}

	batch := make([]models.RawDocument, 0, s.config.BatchSize)
	for len(batch) < s.config.BatchSize {
		doc, err := s.nextPage()
		if err != nil {
			s.exhausted = true
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, io.EOF
		}
		if doc != nil {
			batch = append(batch, *doc)
		}
	}
	return batch, nil
}

// nextPage consumes tokens until one full <page> has been read. A nil
// document with nil error means the page was malformed and skipped.
func (s *Source) nextPage() (*models.RawDocument, error) {
	var (
		inPage  bool
		capture string
		title   strings.Builder
		body    strings.Builder
	)

	for {
		tok, err := s.decoder.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.parseFailed.Add(1)
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "page":
				inPage = true
				title.Reset()
				body.Reset()
			case "title", "text":
				if inPage {
					capture = t.Name.Local
				}
			}
		case xml.CharData:
			switch capture {
			case "title":
				title.Write(t)
			case "text":
				body.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "title", "text":
				capture = ""
			case "page":
				if !inPage {
					continue
				}
				s.pagesSeen.Add(1)
				doc := models.RawDocument{
					Title: strings.TrimSpace(title.String()),
					Body:  strings.TrimSpace(body.String()),
				}
				if doc.Title == "" || doc.Body == "" {
					s.malformed.Add(1)
					return nil, nil
				}
				return &doc, nil
			}
		}
	}
}

// PagesSeen reports pages encountered so far, malformed included.
func (s *Source) PagesSeen() int64 { return s.pagesSeen.Load() }

// Malformed reports pages skipped for missing title or body.
func (s *Source) Malformed() int64 { return s.malformed.Load() }

// ParseErrors reports stream-level syntax failures (at most one; the
// sequence ends there).
func (s *Source) ParseErrors() int64 { return s.parseFailed.Load() }

func (s *Source) Close() error {
	if s.closer != nil {
		s.closer.Close()
	}
	return s.file.Close()
}

// EstimateDocumentCount samples up to samplePages pages from the start of
// the dump, derives average compressed bytes per page and extrapolates over
// the file size. If the dump ends inside the sample the count is exact.
func EstimateDocumentCount(path string, samplePages int) (int64, error) {
	if samplePages < 1 {
		samplePages = 1000
	}

	src, err := Open(Config{Path: path, BatchSize: samplePages})
	if err != nil {
		return 0, err
	}
	defer src.Close()

	info, err := src.file.Stat()
	if err != nil {
		return 0, err
	}

	var sampled int64
	for sampled < int64(samplePages) {
		doc, err := src.nextPage()
		if err != nil {
			// Dump smaller than the sample: the count is exact.
			return src.PagesSeen(), nil
		}
		if doc != nil {
			sampled++
		}
	}

	consumed := src.counted.n.Load()
	if consumed <= 0 || src.PagesSeen() == 0 {
		return sampled, nil
	}
	bytesPerPage := float64(consumed) / float64(src.PagesSeen())
	return int64(float64(info.Size()) / bytesPerPage), nil
}

// countingReader tracks raw (compressed) bytes consumed from the file, which
// keeps the size estimate honest for compressed dumps.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
