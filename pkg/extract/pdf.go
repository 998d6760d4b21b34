package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (Result, error) {
	if !looksLikePDF(data) {
		return Result{}, fmt.Errorf("payload is not a pdf")
	}
	title, text, err := parsePDFWithGoLib(data)
	if e.cfg.Pdftotext {
		// pdftotext copes better with complex layouts and CJK fonts.
		if alt, altErr := parsePDFWithPdftotext(ctx, data); altErr == nil && alt != "" {
			text, err = alt, nil
		}
	}
	if err != nil {
		return Result{}, err
	}
	text = normalizeTextPreserveNewlines(text)
	if title == "" {
		title = firstLine(text)
	}
	return Result{
		Title:    title,
		RawText:  text,
		ViewText: text,
		Archive:  data,
	}, nil
}

// parsePDFWithGoLib reads the Info title and the plain text of every page.
// Pages that fail to decode are skipped.
func parsePDFWithGoLib(data []byte) (title, text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}
	title = collapse(reader.Trailer().Key("Info").Key("Title").Text())
	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(pageText)
		buf.WriteString("\n\n")
	}
	if strings.TrimSpace(buf.String()) == "" {
		return title, "", fmt.Errorf("no text extracted from PDF")
	}
	return title, buf.String(), nil
}

// parsePDFWithPdftotext uses the system pdftotext tool (poppler-utils).
func parsePDFWithPdftotext(ctx context.Context, data []byte) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}
	tmp, err := os.CreateTemp("", "extract-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 200 {
		line = string(r[:200])
	}
	return line
}
