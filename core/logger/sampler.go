package logger

import (
	"strconv"
	"strings"
	"sync"
)

// Default debug sampling lets one in fifty high-volume debug lines through.
const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

// ratioSampler passes num out of every den calls. A zero ratio passes
// everything.
type ratioSampler struct {
	mu       sync.Mutex
	num, den int
	seq      int
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the window. Non-positive values turn
// sampling off; num is capped at den.
func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.num, s.den, s.seq = min(num, den), den, 0
}

// SetSpec applies a logging.debug_sample value: "N/D", or "D" for 1/D.
// An empty spec restores the default; "0" or garbage disables sampling.
func (s *ratioSampler) SetSpec(spec string) {
	if strings.TrimSpace(spec) == "" {
		s.Set(defaultSampleNum, defaultSampleDen)
		return
	}
	s.Set(parseRatioSpec(spec))
}

// Allow reports whether the current call falls inside the window.
func (s *ratioSampler) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.den == 0 {
		return true
	}
	pass := s.seq < s.num
	s.seq = (s.seq + 1) % s.den
	return pass
}

func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if numStr, denStr, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
		den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
		if err1 != nil || err2 != nil {
			return 0, 0
		}
		return num, den
	}
	den, err := strconv.Atoi(spec)
	if err != nil || den <= 0 {
		return 0, 0
	}
	return 1, den
}
