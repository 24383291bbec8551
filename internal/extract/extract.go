// Package extract validates uploaded documents and pulls their plain text.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"legalease/api/internal/util"
)

const MaxUploadSize = 10 << 20

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file too large (max 10MB)")
	ErrUnsupportedType = errors.New("invalid file type")
	ErrInvalidPDF      = errors.New("invalid PDF file")
	ErrEncryptedPDF    = errors.New("encrypted PDF files are not supported")
	ErrInvalidDOCX     = errors.New("invalid DOCX file")
	ErrInvalidText     = errors.New("text file is not valid UTF-8")
)

var allowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":  "text/plain; charset=utf-8",
}

type Result struct {
	Text           string `json:"text"`
	FileType       string `json:"fileType"`
	ContentType    string `json:"contentType"`
	PageCount      int    `json:"pageCount,omitempty"`
	WordCount      int    `json:"wordCount"`
	CharacterCount int    `json:"characterCount"`
}

// Validate checks the cheap properties of an upload before its body is read:
// size and extension. It returns the lowercase extension.
func Validate(fileName string, size int64) (string, error) {
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > MaxUploadSize {
		return "", ErrTooLarge
	}
	ext := util.FileExtension(fileName)
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return ext, nil
}

// Extract validates the file content for its type and returns the cleaned
// text. Nothing is written anywhere.
func Extract(fileName string, data []byte) (Result, error) {
	ext, err := Validate(fileName, int64(len(data)))
	if err != nil {
		return Result{}, err
	}

	result := Result{FileType: ext, ContentType: allowedExtensions[ext]}
	var text string
	switch ext {
	case "pdf":
		pages, err := ValidatePDF(data)
		if err != nil {
			return Result{}, err
		}
		result.PageCount = pages
		text, err = pdfText(data)
		if err != nil {
			return Result{}, err
		}
	case "docx":
		text, err = docxText(data)
		if err != nil {
			return Result{}, err
		}
	case "txt":
		if !utf8.Valid(data) {
			return Result{}, ErrInvalidText
		}
		text = strings.TrimPrefix(string(data), "\ufeff")
	}

	result.Text = CleanText(text)
	result.WordCount = util.CountWords(result.Text)
	result.CharacterCount = util.CountCharacters(result.Text)
	return result, nil
}

var (
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`(?m)[ \t\f\v]+$`)
	leadingSpace  = regexp.MustCompile(`(?m)^[ \t\f\v]+`)
)

// CleanText normalizes line endings, trims every line and collapses runs of
// blank lines to one.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingSpace.ReplaceAllString(text, "")
	text = leadingSpace.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
