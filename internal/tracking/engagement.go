package tracking

// scrollStep is the milestone granularity for scroll depth events.
const scrollStep = 25

// ScrollDepth tracks the deepest scroll milestone reached on a page.
type ScrollDepth struct {
	max int
}

// Observe takes a scroll percentage and returns the milestone to report,
// or 0 when no new milestone was reached. Each milestone is reported at
// most once and only when deeper than the previous one.
func (s *ScrollDepth) Observe(percent int) int {
	if percent > 100 {
		percent = 100
	}
	milestone := percent / scrollStep * scrollStep
	if milestone <= s.max {
		return 0
	}
	s.max = milestone
	return milestone
}

// Max returns the deepest milestone reported so far.
func (s *ScrollDepth) Max() int {
	return s.max
}
