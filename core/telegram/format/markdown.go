package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var (
	mdV1Rx = regexp.MustCompile("([_*`\\[])")
	mdV2Rx = regexp.MustCompile("([" + escapeClass(mdV2Specials) + "])")
)

// escapeClass backslash-escapes every rune so it is literal inside a
// character class; regexp.QuoteMeta leaves '-' alone, which forms a range.
func escapeClass(chars string) string {
	var b strings.Builder
	for _, r := range chars {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Rx.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return mdV2Rx.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes text for MarkdownV2 messages.
func V2(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2)
	return out
}

// Code wraps text in a MarkdownV2 inline code span.
func Code(text string) string {
	return "`" + codeRx.ReplaceAllString(text, `\$1`) + "`"
}

var codeRx = regexp.MustCompile("([`\\\\])")
