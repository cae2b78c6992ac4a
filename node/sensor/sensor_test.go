package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadingsStayInRange(t *testing.T) {
	s := NewSimulated(1)
	for i := 0; i < 1000; i++ {
		lum, temp := s.Readings()
		assert.GreaterOrEqual(t, lum, int32(0))
		assert.LessOrEqual(t, lum, int32(MaxLuminosity))
		assert.GreaterOrEqual(t, temp, int32(MinTemperature))
		assert.LessOrEqual(t, temp, int32(MaxTemperature))
	}
}

func TestApplyIsVisibleInDisplay(t *testing.T) {
	s := NewSimulated(1)
	s.Apply(42, "avg_temp=20 nodes=2")

	brightness, text := s.Display()
	assert.Equal(t, int32(42), brightness)
	assert.Equal(t, "avg_temp=20 nodes=2", text)
}
