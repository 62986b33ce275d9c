package board

import (
	"context"
	"log/slog"
	"time"
)

// Event is a decoded button gesture
type Event int

const (
	// EventShortPress is a single press shorter than the long-press hold
	EventShortPress Event = iota
	// EventDoublePress is two short presses within the double-press gap
	EventDoublePress
	// EventLongPress is a hold of at least the long-press duration
	EventLongPress
)

// String returns the event name
func (e Event) String() string {
	switch e {
	case EventShortPress:
		return "short_press"
	case EventDoublePress:
		return "double_press"
	case EventLongPress:
		return "long_press"
	default:
		return "unknown"
	}
}

// Debounce timing, matching the device's expected gestures
const (
	minPressDuration  = 50 * time.Millisecond
	doublePressGap    = 500 * time.Millisecond
	longPressDuration = 3000 * time.Millisecond
)

// Decoder turns raw button levels into discrete press events.
// A single short press is only reported after the double-press gap has
// passed without a second press.
type Decoder struct {
	wasPressed bool
	pressedAt  time.Time

	pendingShort bool
	lastShortAt  time.Time
}

// NewDecoder creates a button gesture decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed advances the decoder with a raw level sample and returns any
// events that resolved at this instant
func (d *Decoder) Feed(pressed bool, now time.Time) []Event {
	var events []Event

	switch {
	case pressed && !d.wasPressed:
		d.pressedAt = now
		d.wasPressed = true

	case !pressed && d.wasPressed:
		d.wasPressed = false
		duration := now.Sub(d.pressedAt)

		switch {
		case duration >= longPressDuration:
			d.pendingShort = false
			events = append(events, EventLongPress)

		case duration >= minPressDuration:
			if d.pendingShort && now.Sub(d.lastShortAt) < doublePressGap {
				d.pendingShort = false
				events = append(events, EventDoublePress)
			} else {
				d.pendingShort = true
				d.lastShortAt = now
			}
		}
	}

	// A lone short press resolves once a second press can no longer
	// arrive in time
	if d.pendingShort && !d.wasPressed && now.Sub(d.lastShortAt) >= doublePressGap {
		d.pendingShort = false
		events = append(events, EventShortPress)
	}

	return events
}

// Poller samples the board button and emits decoded events
type Poller struct {
	board   Board
	decoder *Decoder
	logger  *slog.Logger

	interval time.Duration
	events   chan Event
}

// NewPoller creates a button poller sampling at 50 Hz
func NewPoller(b Board, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		board:    b,
		decoder:  NewDecoder(),
		logger:   logger,
		interval: 20 * time.Millisecond,
		events:   make(chan Event, 8),
	}
}

// Events returns the decoded event stream
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Run starts the polling loop (blocking, use goroutine)
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			pressed, err := p.board.ReadButton()
			if err != nil {
				continue
			}

			for _, ev := range p.decoder.Feed(pressed, now) {
				p.logger.Debug("button event", "event", ev.String())
				select {
				case p.events <- ev:
				default:
					// Consumer not keeping up, drop
				}
			}
		}
	}
}
