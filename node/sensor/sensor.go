package sensor

import (
	"math/rand"
	"sync"

	"github.com/lanmaster/lanmaster/shared/logger"
)

const (
	MaxLuminosity  = 1000
	MinTemperature = -10
	MaxTemperature = 45
)

// Simulated produces drifting light and temperature readings and keeps the
// last display command it was given.
type Simulated struct {
	mu          sync.Mutex
	rng         *rand.Rand
	luminosity  int32
	temperature int32
	brightness  int32
	text        string
}

func NewSimulated(seed int64) *Simulated {
	rng := rand.New(rand.NewSource(seed))
	return &Simulated{
		rng:         rng,
		luminosity:  int32(rng.Intn(MaxLuminosity + 1)),
		temperature: int32(15 + rng.Intn(10)),
	}
}

// Readings advances the simulation one step and returns the new values.
func (s *Simulated) Readings() (luminosity, temperature int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.luminosity = clamp(s.luminosity+int32(s.rng.Intn(101)-50), 0, MaxLuminosity)
	s.temperature = clamp(s.temperature+int32(s.rng.Intn(3)-1), MinTemperature, MaxTemperature)
	return s.luminosity, s.temperature
}

// Apply sets the display state.
func (s *Simulated) Apply(brightness int32, text string) {
	s.mu.Lock()
	s.brightness = brightness
	s.text = text
	s.mu.Unlock()

	logger.LogInfo("Display", "brightness=%d text=%q", brightness, text)
}

// Display returns the last applied command.
func (s *Simulated) Display() (brightness int32, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness, s.text
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
