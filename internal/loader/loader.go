package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// ErrNoDocuments is returned when a candidate's sources contain nothing readable.
var ErrNoDocuments = errors.New("no documents found")

// Document is the extracted text of one source file.
type Document struct {
	CandidateID string
	Path        string
	Text        string
}

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (d *DefaultFileReader) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// Loader discovers and extracts candidate documents.
type Loader struct {
	Walker     FileSystemWalker
	FileReader FileReader
	// ExtractPDF returns the plain text of a PDF file.
	ExtractPDF func(path string) (string, error)
}

// New returns a Loader backed by the local filesystem.
func New() *Loader {
	return &Loader{
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
		ExtractPDF: extractPDF,
	}
}

// Supported reports whether the file extension is one the loader can extract.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// Load reads every source of a candidate. A source is a file or a directory;
// directories are walked in sorted order. A missing source is an error.
func (l *Loader) Load(ctx context.Context, candidateID string, sources []string) ([]Document, error) {
	var paths []string
	for _, src := range sources {
		info, err := l.FileReader.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("source %s for %s: %w", src, candidateID, err)
		}
		if !info.IsDir() {
			paths = append(paths, src)
			continue
		}
		err = l.Walker.Walk(src, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				// Mock walkers pass a nil Dirent.
				if de != nil && de.IsDir() {
					return nil
				}
				if Supported(path) {
					paths = append(paths, path)
				}
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", src, err)
		}
	}

	var docs []Document
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := l.extract(p)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", p, err)
		}
		text = Normalize(text)
		if text == "" {
			log.Warn().Str("candidate", candidateID).Str("source", p).Msg("document has no extractable text")
			continue
		}
		log.Debug().Str("candidate", candidateID).Str("source", p).Int("chars", len(text)).Msg("loaded document")
		docs = append(docs, Document{CandidateID: candidateID, Path: p, Text: text})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoDocuments, candidateID)
	}
	return docs, nil
}

func (l *Loader) extract(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if l.ExtractPDF == nil {
			return "", errors.New("no PDF extractor configured")
		}
		return l.ExtractPDF(path)
	case ".txt", ".md":
		b, err := l.FileReader.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// extractPDF pulls the plain text layer out of a PDF.
func extractPDF(path string) (text string, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("source", path).Msg("failed to close pdf")
		}
	}()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\x{00A0}\f\v]+`)
	lineEdgeWS = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings and whitespace so chunk boundaries fall on real paragraphs.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = lineEdgeWS.ReplaceAllString(s, "")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
