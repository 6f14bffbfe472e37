package hal

import (
	"math/rand"
	"sync"
)

// SimPowerSensor produces bounded-random draw: 0-26 V, 0-3.2 A (spec.md
// section 4.3). It never fails, so it has no cached-value fallback path.
type SimPowerSensor struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last PowerSample
}

// NewSimPowerSensor builds a simulated power sensor seeded from src.
func NewSimPowerSensor(src rand.Source) *SimPowerSensor {
	return &SimPowerSensor{rng: rand.New(src)}
}

func (s *SimPowerSensor) Measure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.rng.Float64() * 26.0
	a := s.rng.Float64() * 3.2
	s.last = PowerSample{VoltageV: v, CurrentA: a, PowerKW: v * a / 1000.0}
	return nil
}

func (s *SimPowerSensor) Get() PowerSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SimProximitySensor produces a bounded-random distance reading: 2-50 cm
// (spec.md section 4.3).
type SimProximitySensor struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last ProximitySample
}

// NewSimProximitySensor builds a simulated proximity sensor seeded from src.
func NewSimProximitySensor(src rand.Source) *SimProximitySensor {
	return &SimProximitySensor{rng: rand.New(src)}
}

func (s *SimProximitySensor) Measure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ProximitySample{DistanceCM: 2.0 + s.rng.Float64()*48.0}
	return nil
}

func (s *SimProximitySensor) Get() ProximitySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SimActuator records the last applied command; it never fails.
type SimActuator struct {
	mu   sync.Mutex
	last ActuatorCommand
}

func NewSimActuator() *SimActuator { return &SimActuator{} }

func (a *SimActuator) Apply(cmd ActuatorCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = cmd
	return nil
}

func (a *SimActuator) Last() ActuatorCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
