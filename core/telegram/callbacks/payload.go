package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PayloadParts splits the callback payload into parts using the given separator.
func PayloadParts(c tele.Context, sep string) ([]string, error) {
	p := CallbackPayload(c)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, sep), nil
}

// PayloadFields splits a payload like "0|08.10.2025|11:20-12:00" and requires
// exactly n non-empty fields.
func PayloadFields(c tele.Context, sep string, n int) ([]string, error) {
	parts, err := PayloadParts(c, sep)
	if err != nil {
		return nil, err
	}
	if len(parts) != n {
		return nil, strconv.ErrSyntax
	}
	for _, p := range parts {
		if p == "" {
			return nil, strconv.ErrSyntax
		}
	}
	return parts, nil
}
