package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Error kinds reported in send.fail log lines.
const (
	kindTimeout = "timeout"
	kindDNS     = "dns"
	kindDial    = "dial"
	kindTLS     = "tls"
	kindBlocked = "blocked"
	kind4xx     = "http_4xx"
	kind5xx     = "http_5xx"
	kindUnknown = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// recipientGone reports a 403 for a chat that blocked the bot or whose
// account was deleted. Retrying such a send never helps.
func recipientGone(err error) bool {
	if httpStatusFromError(err) != http.StatusForbidden {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blocked") || strings.Contains(msg, "deactivated")
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return kindTimeout
	}
	if recipientGone(err) {
		return kindBlocked
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return kindTimeout
		}
		return kindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return kindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return kindDial
		}
		if opErr.Op == "read" || opErr.Op == "write" {
			if kind := classifyError(opErr.Err); kind != kindUnknown {
				return kind
			}
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
		if kind := classifyError(urlErr.Err); kind != kindUnknown {
			return kind
		}
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return kindTLS
	}

	switch status := httpStatusFromError(err); {
	case status >= 500:
		return kind5xx
	case status >= 400:
		return kind4xx
	}
	return kindUnknown
}

// sanitizeErrorMessage masks bot tokens that transport errors embed in URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// httpStatusFromError extracts the Bot API status from typed telebot errors,
// falling back to a trailing "(NNN)" in the message.
func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	lo, hi := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if lo < 0 || hi <= lo+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[lo+1 : hi]))
	if convErr != nil {
		return 0
	}
	return code
}
