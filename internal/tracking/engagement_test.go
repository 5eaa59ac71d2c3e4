package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrollDepthObserve(t *testing.T) {
	var s ScrollDepth

	steps := []struct {
		percent int
		want    int
	}{
		{10, 0},
		{26, 25},
		{30, 0},
		{80, 75},
		{50, 0},
		{140, 100},
		{100, 0},
	}
	for _, step := range steps {
		assert.Equal(t, step.want, s.Observe(step.percent), "Observe(%d)", step.percent)
	}
	assert.Equal(t, 100, s.Max())
}

func TestScrollDepthClampsAt100(t *testing.T) {
	var s ScrollDepth
	assert.Equal(t, 100, s.Observe(140))
	assert.Equal(t, 0, s.Observe(100))
	assert.Equal(t, 100, s.Max())
}
