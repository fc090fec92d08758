package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/fingames/core/telegram/netutil"
)

const (
	dialTimeout     = 5 * time.Second
	tlsTimeout      = 5 * time.Second
	idleConnTimeout = 30 * time.Second
	responseTimeout = 5 * time.Second
	clientTimeout   = 30 * time.Second
	keepAlive       = 30 * time.Second
	redialAttempts  = 3
	redialBackoff   = 2 * time.Second
)

var errBodyNotRewindable = errors.New("telegram: request body cannot be replayed")

// BuildHTTPClient returns the client telebot talks to the Bot API with.
// longPoll is the getUpdates timeout; response deadlines are stretched past
// it so an idle long poll is never cut short.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	headerTimeout, total := responseTimeout, clientTimeout
	if longPoll > 0 {
		headerTimeout += longPoll
		total = max(total, longPoll+responseTimeout+dialTimeout)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   total,
		Transport: &redialTransport{base: transport, attempts: redialAttempts, backoff: redialBackoff},
	}
}

// redialTransport repeats a request only when the connection to the Bot API
// could not be established. Every Bot API call is a POST, and one that may
// have reached Telegram is not repeated here, so a notification is never
// delivered twice by the transport; the send dispatcher owns wider retries.
type redialTransport struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func (t *redialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	var err error
	for attempt := 1; ; attempt++ {
		next := req
		if attempt > 1 {
			if next, err = rewind(req); err != nil {
				return nil, err
			}
		}
		var resp *http.Response
		resp, err = base.RoundTrip(next)
		if err == nil || attempt >= t.attempts || !netutil.NotSent(err) {
			return resp, err
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// rewind clones req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotRewindable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
