package aloop

import (
	"errors"
	"fmt"
	"strings"
)

// Card is a named set of independent simulated devices, the way a sound card owns its PCM devices.
type Card struct {
	ID          int
	Name        string
	Description string
	Devices     []*Device
}

// NewCard creates a card with one device per scheduler. Device n is named "<name>,<n>" and runs
// on scheds[n]; opts apply to every device.
func NewCard(id int, name string, scheds []Scheduler, opts ...Option) *Card {
	card := &Card{
		ID:          id,
		Name:        name,
		Description: fmt.Sprintf("Virtual loopback %s", name),
	}

	for n, sched := range scheds {
		devOpts := append([]Option{WithName(fmt.Sprintf("%s,%d", name, n))}, opts...)
		devOpts = append(devOpts, WithScheduler(sched))
		card.Devices = append(card.Devices, NewDevice(devOpts...))
	}

	return card
}

// Device returns device n, or nil.
func (c *Card) Device(n int) *Device {
	if n < 0 || n >= len(c.Devices) {
		return nil
	}

	return c.Devices[n]
}

// Close closes every device of the card.
func (c *Card) Close() error {
	var errs []error
	for _, d := range c.Devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// String returns a human-readable representation of the Card.
func (c *Card) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Card %d: %s (%s)\n", c.ID, c.Name, c.Description))
	for n, d := range c.Devices {
		sb.WriteString(fmt.Sprintf("  Device %d: %s\n", n, d))
	}

	return sb.String()
}
