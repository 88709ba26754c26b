package filter

// MovingAverage is a fixed-window rolling mean over an integer stream.
// Once the window is full, each new sample evicts the oldest one.
type MovingAverage struct {
	window []int
	sum    int
	index  int
	count  int
}

// NewMovingAverage creates a filter holding at most size samples.
// A size below 1 is treated as 1.
func NewMovingAverage(size int) *MovingAverage {
	if size < 1 {
		size = 1
	}
	return &MovingAverage{
		window: make([]int, size),
	}
}

// Update appends a sample, evicting the oldest once the window is full.
func (ma *MovingAverage) Update(value int) {
	if ma.count == len(ma.window) {
		ma.sum -= ma.window[ma.index]
	} else {
		ma.count++
	}

	ma.window[ma.index] = value
	ma.sum += value
	ma.index = (ma.index + 1) % len(ma.window)
}

// Average returns the truncated mean of the retained samples, or 0 if none.
func (ma *MovingAverage) Average() int {
	if ma.count == 0 {
		return 0
	}
	return ma.sum / ma.count
}

// Len returns the number of retained samples.
func (ma *MovingAverage) Len() int {
	return ma.count
}

// Size returns the window capacity.
func (ma *MovingAverage) Size() int {
	return len(ma.window)
}

// Reset drops every retained sample.
func (ma *MovingAverage) Reset() {
	ma.sum = 0
	ma.index = 0
	ma.count = 0
	for i := range ma.window {
		ma.window[i] = 0
	}
}
