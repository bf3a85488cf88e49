package main

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{"short", "page01.png", 20, "page01.png"},
		{"exact", "abcdef", 6, "abcdef"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"tiny limit", "abcdefghij", 3, "abcdefghij"},
		{"japanese fits", "第01巻.zip", 8, "第01巻.zip"},
		{"japanese", "ワンピース第100巻カラー版.zip", 10, "ワンピース第1..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.in, tt.maxChars)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			if tt.maxChars >= 4 {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.maxChars)
			}
		})
	}
}
