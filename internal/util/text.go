package util

import (
	"strings"
	"unicode/utf8"
)

func CountWords(text string) int {
	return len(strings.Fields(text))
}

func CountCharacters(text string) int {
	return utf8.RuneCountInString(text)
}
