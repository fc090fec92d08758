// Package voucher issues FG-XXXXXX voucher codes.
package voucher

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m3rciful/fingames/core/logger"
)

const (
	// Prefix starts every voucher code.
	Prefix = "FG-"
	// Length is the number of random symbols after the prefix.
	Length   = 6
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codeRe = regexp.MustCompile(`^FG-[A-Z0-9]{6}$`)

// Valid reports whether code has the FG-XXXXXX shape.
func Valid(code string) bool {
	return codeRe.MatchString(code)
}

// Normalize trims and upper-cases user input such as "fg-ab12cd ".
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Checker reports whether a code is already taken.
type Checker interface {
	VoucherExists(ctx context.Context, code string) (bool, error)
}

// Generator produces codes that were unused at the time of the check. The
// store's unique constraint remains the actual guarantee.
type Generator struct {
	checker Checker
	random  io.Reader
}

// Option customises a Generator.
type Option func(*Generator)

// WithRandom replaces the randomness source; used by tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

// NewGenerator returns a generator that pre-checks candidates against checker.
// A nil checker skips the pre-check.
func NewGenerator(checker Checker, opts ...Option) *Generator {
	g := &Generator{checker: checker, random: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Format draws one candidate code from random. Symbols are picked by
// rejection sampling so every character of the alphabet is equally likely.
func Format(random io.Reader) (string, error) {
	const limit = 256 - 256%len(alphabet)
	var (
		out = make([]byte, 0, len(Prefix)+Length)
		buf [1]byte
	)
	out = append(out, Prefix...)
	for len(out) < len(Prefix)+Length {
		if _, err := io.ReadFull(random, buf[:]); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		out = append(out, alphabet[int(buf[0])%len(alphabet)])
	}
	return string(out), nil
}

// Generate returns a candidate nobody holds yet. It loops until an unused code
// is found or ctx is done.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := Format(g.random)
		if err != nil {
			return "", err
		}
		if g.checker == nil {
			return code, nil
		}
		taken, err := g.checker.VoucherExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check voucher: %w", err)
		}
		if !taken {
			if attempt > 1 {
				logger.SVCVouchers.LogAttrs(ctx, slog.LevelInfo, "voucher.collision_resolved",
					slog.Int("attempts", attempt),
					slog.String("rid", logger.RIDFrom(ctx)),
				)
			}
			return code, nil
		}
		logger.SVCVouchers.LogAttrs(ctx, slog.LevelDebug, "voucher.collision",
			slog.String("voucher", code),
			slog.Int("attempt", attempt),
		)
	}
}
