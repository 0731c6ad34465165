// Package clock defines the narrow clock-adapter interface used by the
// decoder owner to convert stream timestamps into wall-clock display
// dates, per §4.4. It is a pure transformation: no wall-clock reads of
// its own beyond what the caller supplies.
package clock

import (
	"errors"
)

// DefaultRate is the integer "no rate change" baseline; actual
// playback speed is DefaultRate/rate.
const DefaultRate = 1000

// ErrConversion is returned when a timestamp cannot be converted (no
// reference point yet, or the stream timestamp is before any known
// anchor). Per §7 this invalidates the unit; the caller discards it.
var ErrConversion = errors.New("clock: conversion failure")

// Adapter converts a stream timestamp to a wall-clock display date and
// reports the current playback rate. Implementations must be safe to
// call only while the decoder owner's mutex is held, preserving the
// monotonicity guarantee from §5.
type Adapter interface {
	// Convert maps streamTS (in the stream's own timestamp domain) to a
	// wall-clock monotonic microsecond date. maxBound, when non-zero,
	// is the latest timestamp seen so far in the stream and is used by
	// implementations that need it to detect discontinuities.
	Convert(streamTS int64, maxBound int64) (wallTS int64, rate int, err error)

	// Rate returns the current playback rate without performing a
	// conversion (default = clock.DefaultRate).
	Rate() int
}

// Linear is a reference Adapter implementing a simple anchor+slope
// model: wallTS = originWall + (streamTS-originStream)*rate/DefaultRate.
// It is the adapter used by cmd/coreplayd's demo harness and by tests;
// a real deployment substitutes a clock sourced from the display
// sink's vsync or an external master clock, per §1's scope exclusion
// of "clock source" as an external collaborator.
type Linear struct {
	originStream int64
	originWall   int64
	rate         int
	set          bool
}

// NewLinear creates a Linear adapter with no anchor set; the first
// SetAnchor call establishes the stream<->wall correspondence.
func NewLinear() *Linear {
	return &Linear{rate: DefaultRate}
}

// SetAnchor pins streamTS to wallTS, establishing (or re-establishing,
// e.g. after a flush) the conversion's reference point.
func (l *Linear) SetAnchor(streamTS, wallTS int64) {
	l.originStream = streamTS
	l.originWall = wallTS
	l.set = true
}

// SetRate updates the playback rate (DefaultRate = normal speed).
func (l *Linear) SetRate(rate int) {
	if rate <= 0 {
		rate = DefaultRate
	}
	l.rate = rate
}

func (l *Linear) Rate() int { return l.rate }

func (l *Linear) Convert(streamTS int64, _ int64) (int64, int, error) {
	if !l.set {
		return 0, l.rate, ErrConversion
	}
	delta := streamTS - l.originStream
	scaled := delta * int64(l.rate) / int64(DefaultRate)
	return l.originWall + scaled, l.rate, nil
}
