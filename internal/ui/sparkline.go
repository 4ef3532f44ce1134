package ui

import "strings"

// Sparkline renders recent samples as Unicode block characters.
type Sparkline struct {
	samples []float64 // ring buffer
	head    int
	count   int
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(v float64) {
	s.samples[s.head] = v
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Clear drops every sample.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}

// Count returns the number of samples added since the last Clear.
func (s *Sparkline) Count() int {
	return s.count
}

// recent returns up to n of the newest samples, oldest first.
func (s *Sparkline) recent(n int) []float64 {
	held := min(s.count, len(s.samples))
	n = min(n, held)
	out := make([]float64, 0, n)
	for i := n; i > 0; i-- {
		idx := (s.head - i + len(s.samples)) % len(s.samples)
		out = append(out, s.samples[idx])
	}
	return out
}

// Render draws the newest width samples scaled to the largest shown,
// left-padded with spaces. width <= 0 renders the full capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.recent(width)

	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(sparkChars)-1))
		}
		idx = max(0, min(idx, len(sparkChars)-1))
		sb.WriteRune(sparkChars[idx])
	}
	return sb.String()
}
