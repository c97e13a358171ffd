package autopost

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		body   string
		suffix string
		want   string
	}{
		{name: "body only", body: "hello", want: "hello"},
		{name: "all parts", prefix: "[AI]", body: "hello", suffix: "#AI", want: "[AI] hello #AI"},
		{name: "trims parts", prefix: "  [AI] ", body: "\thello\n", suffix: " #AI ", want: "[AI] hello #AI"},
		{name: "blank body", prefix: "[AI]", body: "   ", suffix: "#AI", want: "[AI] #AI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.prefix, tt.body, tt.suffix))
		})
	}
}

func TestTruncateAtWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{name: "fits", text: "Shot: a.jpg #AI", max: 280, want: "Shot: a.jpg #AI"},
		{name: "exact length", text: "abc def", max: 7, want: "abc def"},
		{name: "cut before hashtag", text: "Shot: a.jpg #AI #虚拟人", max: 18, want: "Shot: a.jpg #AI"},
		{name: "boundary at limit", text: "one two three", max: 7, want: "one two"},
		{name: "multi-byte runes", text: "今天 天气 很好 #晴天", max: 6, want: "今天 天气"},
		{name: "single long token", text: "abcdefghij", max: 4, want: "abcd"},
		{name: "leading space dropped", text: " abcdefghij", max: 4, want: "abcd"},
		{name: "leading space before a boundary", text: "  虚#拟a\ta", max: 5, want: "虚#拟a"},
		{name: "leading space within limit", text: "\t hi", max: 10, want: "hi"},
		{name: "disabled", text: "anything goes", max: 0, want: "anything goes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateAtWord(tt.text, tt.max)
			assert.Equal(t, tt.want, got)
			if tt.max > 0 {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.max)
				assert.True(t, utf8.ValidString(got))
			}
		})
	}
}

func TestTruncateAtWord_Law(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 500; i++ {
		text := faker.Sentence(faker.Number(5, 60)) + " #AI #虚拟人"
		max := faker.Number(30, 200)

		got := TruncateAtWord(text, max)
		if utf8.RuneCountInString(text) <= max {
			assert.Equal(t, text, got)
			continue
		}

		assert.LessOrEqual(t, utf8.RuneCountInString(got), max)
		assert.True(t, strings.HasPrefix(text, got), "%q is not a prefix of %q", got, text)
		next, _ := utf8.DecodeRuneInString(text[len(got):])
		assert.True(t, unicode.IsSpace(next), "cut %q ends mid-word in %q", got, text)
		assert.False(t, strings.HasSuffix(got, " "))
	}
}

func TestTruncateAtWord_LeadingWhitespace(t *testing.T) {
	faker := gofakeit.New(7)
	pads := []string{" ", "  ", "\t", "\n ", "\u3000"}
	for i := 0; i < 500; i++ {
		trimmed := faker.Sentence(faker.Number(3, 30))
		text := pads[i%len(pads)] + trimmed
		max := faker.Number(5, 80)

		got := TruncateAtWord(text, max)
		assert.Equal(t, TruncateAtWord(trimmed, max), got)
		assert.True(t, strings.HasPrefix(trimmed, got))
		if utf8.RuneCountInString(trimmed) > max && got != "" && len(got) < len(trimmed) {
			next, _ := utf8.DecodeRuneInString(trimmed[len(got):])
			if !unicode.IsSpace(next) {
				// only a single oversized first token may be hard-cut
				assert.NotContains(t, got, " ")
			}
		}
	}
}

func TestFillTemplate(t *testing.T) {
	got := fillTemplate("{stem} / {filename} / {id} / {unknown}", "a.jpg", "a", "2024/a.jpg")
	assert.Equal(t, "a / a.jpg / 2024/a.jpg / {unknown}", got)
}
