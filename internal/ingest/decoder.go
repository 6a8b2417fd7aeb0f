// Package ingest consumes raw telemetry from the bus and reconciles it
// into device, telemetry, and alert state, then fans updates out to live
// subscribers.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedPayload is returned when a message body is not valid JSON.
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	// ErrMissingField is returned when a required field is absent. The
	// whole message is dropped: logged, not retried, no state change.
	ErrMissingField = errors.New("missing required field")
)

// Reading is one decoded telemetry sample as carried on the wire.
type Reading struct {
	DripRate    float64
	FlowStatus  string
	BottleLevel float64
	Alert       string
	// Timestamp is zero when the message omitted one; the store assigns
	// the server time in that case.
	Timestamp time.Time
}

// wireReading uses pointer fields so absent keys are distinguishable from
// zero values.
type wireReading struct {
	DripRate    *float64 `json:"dripRate"`
	FlowStatus  *string  `json:"flowStatus"`
	BottleLevel *float64 `json:"bottleLevel"`
	Alert       *string  `json:"alert"`
	Timestamp   *string  `json:"timestamp"`
}

// DecodeReading parses a telemetry payload. dripRate, flowStatus and
// bottleLevel are required; alert and timestamp (RFC 3339) are optional.
func DecodeReading(payload []byte) (*Reading, error) {
	var wire wireReading
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch {
	case wire.DripRate == nil:
		return nil, fmt.Errorf("%w: dripRate", ErrMissingField)
	case wire.FlowStatus == nil:
		return nil, fmt.Errorf("%w: flowStatus", ErrMissingField)
	case wire.BottleLevel == nil:
		return nil, fmt.Errorf("%w: bottleLevel", ErrMissingField)
	}

	reading := &Reading{
		DripRate:    *wire.DripRate,
		FlowStatus:  *wire.FlowStatus,
		BottleLevel: *wire.BottleLevel,
	}

	if wire.Alert != nil {
		reading.Alert = *wire.Alert
	}

	if wire.Timestamp != nil && *wire.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, *wire.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q: %w", ErrMalformedPayload, *wire.Timestamp, err)
		}
		reading.Timestamp = ts.UTC()
	}

	return reading, nil
}
