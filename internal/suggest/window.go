package suggest

import (
	"fmt"
	"strings"

	"example.com/dailymenu/internal/domain"
)

// TimeWindow is an inclusive range of minutes.
type TimeWindow struct {
	Min int
	Max int
}

// Named windows offered by the menu filters.
var (
	WindowShort  = TimeWindow{Min: 5, Max: 10}
	WindowMedium = TimeWindow{Min: 15, Max: 30}
	WindowLong   = TimeWindow{Min: 30, Max: 120}
)

// ParseWindow resolves a named window (short, medium, long).
func ParseWindow(name string) (TimeWindow, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "short":
		return WindowShort, nil
	case "medium":
		return WindowMedium, nil
	case "long":
		return WindowLong, nil
	}
	return TimeWindow{}, fmt.Errorf("%w: unknown window %q", domain.ErrInvalidTimeWindow, name)
}

// Validate rejects negative or inverted ranges.
func (w TimeWindow) Validate() error {
	if w.Min < 0 || w.Min > w.Max {
		return fmt.Errorf("%w: %d-%d", domain.ErrInvalidTimeWindow, w.Min, w.Max)
	}
	return nil
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%d-%d min", w.Min, w.Max)
}

// Criteria is a single suggestion request.
type Criteria struct {
	Window  TimeWindow
	Energy  domain.Energy
	Context domain.SocialContext
	Count   int
	// Hidden lists activities the user never wants to see. They are excluded
	// from both the first query and the post-reset query.
	Hidden domain.IDSet
}

// Validate checks the criteria before any state is touched.
func (c Criteria) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if !c.Energy.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEnergy, c.Energy)
	}
	if !c.Context.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidContext, c.Context)
	}
	if c.Count < 1 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidCount, c.Count)
	}
	return nil
}
