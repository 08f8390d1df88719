// Package extract converts raw uploaded bytes into a single normalized
// text string. It is a pure transformation: no side effects, and an empty
// result is not an error by itself.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unioffice/v2/document"

	"ragbase/internal/rag/ragerr"
)

// Format tags the declared document format.
type Format string

const (
	FormatPlain Format = "plain"
	FormatPDF   Format = "pdf"
	FormatDocx  Format = "docx"
)

// DetectFormat infers the document format from the declared file name.
// Unsupported extensions return a ValidationError so the upload is
// rejected before any bytes are parsed.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		return FormatPlain, nil
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	default:
		return "", ragerr.Validationf("unsupported file type: %s (accepted: .txt, .md, .pdf, .docx)", fileName)
	}
}

// Extract parses data as the given format and returns the extracted text.
// Bytes that cannot be parsed as the declared format (corrupt, encrypted,
// mislabeled) fail with an ExtractionError.
func Extract(format Format, data []byte) (string, error) {
	switch format {
	case FormatPlain:
		return extractPlain(data)
	case FormatPDF:
		return extractPDF(data)
	case FormatDocx:
		return extractDocx(data)
	default:
		return "", ragerr.Validationf("unsupported format: %s", format)
	}
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", &ragerr.ExtractionError{Err: fmt.Errorf("file is not valid UTF-8 text")}
	}
	return normalize(string(data)), nil
}

func extractPDF(data []byte) (string, error) {
	// Content sniffing guards against renamed files: parsing a zip or a
	// JPEG as PDF fails with opaque errors deep inside the parser.
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return "", &ragerr.ExtractionError{Err: fmt.Errorf("file content is %s, not a PDF", mt.String())}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ragerr.ExtractionError{Err: fmt.Errorf("cannot open PDF: %w", err)}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ragerr.ExtractionError{Err: fmt.Errorf("cannot extract text from PDF page %d: %w", i, err)}
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return normalize(sb.String()), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ragerr.ExtractionError{Err: fmt.Errorf("cannot open docx: %w", err)}
	}
	defer doc.Close()

	var sb strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			sb.WriteString(r.Text())
		}
		sb.WriteString("\n")
	}
	return normalize(sb.String()), nil
}

// normalize unifies line endings and trims surrounding whitespace so the
// chunker sees a consistent view regardless of the source format.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
