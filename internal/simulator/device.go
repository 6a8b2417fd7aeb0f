// Package simulator provides a synthetic drip-sensor fleet for development
// and load testing. Readings follow the same wire format real sensors
// publish.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Device is one simulated infusion monitor.
type Device struct {
	DeviceID string `fake:"{regex:DRIP-[0-9]{4}}"`
	Ward     string `fake:"{randomstring:[ICU,HDU,Oncology,Pediatrics,General]}"`
	Room     int    `fake:"{number:100,499}"`
}

// NewDevice creates a device with generated identity fields.
func NewDevice() *Device {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil
	}
	return &device
}

const (
	alertFlowStopped = "Flow stopped"
	alertLineBlocked = "Line blocked"
	alertBottleLow   = "Bottle level low"
)

// Generator produces correlated readings for one device: the drip rate
// drifts around a baseline, the bottle drains and gets swapped, and the
// flow occasionally stops or blocks for a few readings.
// Note: uses math/rand throughout, which is acceptable for simulation data.
type Generator struct {
	deviceID     string
	baselineRate float64
	lastRate     float64
	bottleLevel  float64
	drainPerTick float64
	faultTicks   int // readings remaining in the current fault
	faultStatus  string
}

// NewGenerator creates a generator for the given device id.
func NewGenerator(deviceID string) *Generator {
	baseline := 15.0 + rand.Float64()*10 // #nosec G404 - weak random is acceptable for simulation
	return &Generator{
		deviceID:     deviceID,
		baselineRate: baseline,
		lastRate:     baseline,
		bottleLevel:  60.0 + rand.Float64()*40,
		drainPerTick: 0.2 + rand.Float64()*0.3,
	}
}

// Reading is the wire shape published to the telemetry topic.
type Reading struct {
	DripRate    float64 `json:"dripRate"`
	FlowStatus  string  `json:"flowStatus"`
	BottleLevel float64 `json:"bottleLevel"`
	Alert       string  `json:"alert,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// Next advances the device state by one tick and returns the reading.
func (g *Generator) Next(t time.Time) *Reading {
	g.advanceFault()

	status := "flowing"
	alert := ""
	switch g.faultStatus {
	case "stopped":
		status = "stopped"
		alert = alertFlowStopped
	case "blocked":
		status = "blocked"
		alert = alertLineBlocked
	}

	rate := g.nextRate(status)

	if status == "flowing" {
		g.bottleLevel -= g.drainPerTick * (rate / g.baselineRate)
	}
	if g.bottleLevel < 5 {
		// Bottle swap.
		g.bottleLevel = 100
	} else if g.bottleLevel < 20 && alert == "" {
		alert = alertBottleLow
	}

	return &Reading{
		DripRate:    math.Round(rate*10) / 10,
		FlowStatus:  status,
		BottleLevel: math.Round(g.bottleLevel*10) / 10,
		Alert:       alert,
		Timestamp:   t.UTC().Format(time.RFC3339),
	}
}

// advanceFault steps the fault state machine: faults are rare and persist
// for a handful of readings so downstream consumers see repeats.
func (g *Generator) advanceFault() {
	if g.faultTicks > 0 {
		g.faultTicks--
		if g.faultTicks == 0 {
			g.faultStatus = ""
		}
		return
	}

	roll := rand.Float64() // #nosec G404 - weak random is acceptable for simulation
	switch {
	case roll < 0.02:
		g.faultStatus = "stopped"
		g.faultTicks = 2 + rand.Intn(4)
	case roll < 0.03:
		g.faultStatus = "blocked"
		g.faultTicks = 2 + rand.Intn(4)
	}
}

func (g *Generator) nextRate(status string) float64 {
	if status != "flowing" {
		return 0
	}

	// Random walk pulled back toward the baseline.
	drift := (rand.Float64() - 0.5) * 1.5 // #nosec G404 - weak random is acceptable for simulation
	rate := g.lastRate + drift + (g.baselineRate-g.lastRate)*0.1
	rate = math.Max(1, math.Min(g.baselineRate*1.5, rate))
	g.lastRate = rate
	return rate
}
