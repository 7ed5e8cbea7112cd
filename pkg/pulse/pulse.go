// Package pulse holds the most recent RC pulse width measured by the
// signal-capture side (a pin interrupt on the MCU, or a reader goroutine on
// the host) and hands it to the tick loop.
//
// The value is a single scalar with one writer and one reader, so a single
// atomic store/load is enough: readers always see the most recent complete
// write and never a torn value.
package pulse

import (
	"math"
	"sync/atomic"
)

// DefaultWidth is what the cell reports before the first edge arrives.
const DefaultWidth uint16 = 1500

// Source provides the latest measured pulse width in microseconds.
type Source interface {
	ReadPulseWidth() uint16
}

// Cell is a tear-free holder of the latest pulse width.
type Cell struct {
	v atomic.Uint32
}

var _ Source = &Cell{}

// NewCell returns a cell holding DefaultWidth.
func NewCell() *Cell {
	c := &Cell{}
	c.Store(DefaultWidth)
	return c
}

// Store overwrites the value in place.
func (c *Cell) Store(width uint16) {
	c.v.Store(uint32(width))
}

// Load returns the most recent write.
func (c *Cell) Load() uint16 {
	return uint16(c.v.Load())
}

func (c *Cell) ReadPulseWidth() uint16 {
	return c.Load()
}

// EdgeTimer turns edge notifications into pulse widths. Edge must be called
// from a single context (the pin interrupt): a rising edge records the start
// time, a falling edge stores the elapsed time in the cell.
type EdgeTimer struct {
	cell  *Cell
	start uint32
}

func NewEdgeTimer(cell *Cell) *EdgeTimer {
	return &EdgeTimer{cell: cell}
}

// Edge handles one transition. nowMicros is a free-running microsecond
// counter; wrap-around is handled by unsigned subtraction.
func (t *EdgeTimer) Edge(high bool, nowMicros uint32) {
	if high {
		t.start = nowMicros
		return
	}

	width := nowMicros - t.start
	if width > math.MaxUint16 {
		width = math.MaxUint16
	}
	t.cell.Store(uint16(width))
}
