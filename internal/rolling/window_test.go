package rolling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_MeanBeforeFull(t *testing.T) {
	w := NewWindow(5)
	assert.Zero(t, w.Mean())

	w.Push(100)
	w.Push(200)
	assert.Equal(t, 2, w.Len())
	assert.InDelta(t, 150.0, w.Mean(), 1e-9)
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{10, 20, 30} {
		w.Push(v)
	}
	assert.Equal(t, 3, w.Len())
	assert.InDelta(t, 20.0, w.Mean(), 1e-9)

	// Fourth sample evicts the 10.
	w.Push(40)
	assert.Equal(t, 3, w.Len(), "window never exceeds its capacity")
	assert.InDelta(t, 30.0, w.Mean(), 1e-9)

	// Two more evict the 20 and 30.
	w.Push(50)
	w.Push(60)
	assert.InDelta(t, 50.0, w.Mean(), 1e-9)
}

func TestWindow_CapacityHoldsUnderChurn(t *testing.T) {
	w := NewWindow(100)
	for i := range 1000 {
		w.Push(float64(i))
	}
	assert.Equal(t, 100, w.Len())
	// Last 100 samples are 900..999.
	assert.InDelta(t, 949.5, w.Mean(), 1e-9)
}

func TestWindow_Seed(t *testing.T) {
	w := NewWindow(100)
	w.Seed(5000, 10)
	assert.Equal(t, 10, w.Len())
	assert.InDelta(t, 5000.0, w.Mean(), 1e-9)

	// Seeding beyond capacity clamps.
	w2 := NewWindow(5)
	w2.Seed(100, 50)
	assert.Equal(t, 5, w2.Len())
}
