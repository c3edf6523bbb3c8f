package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Energy is the effort an activity asks of the user.
type Energy string

const (
	EnergyLow            Energy = "low"
	EnergyOkay           Energy = "okay"
	EnergyUpForSomething Energy = "upForSomething"
)

// Valid reports whether e is a known energy level.
func (e Energy) Valid() bool {
	switch e {
	case EnergyLow, EnergyOkay, EnergyUpForSomething:
		return true
	}
	return false
}

// SocialContext describes who the activity is done with.
type SocialContext string

const (
	ContextSolo        SocialContext = "solo"
	ContextWithSomeone SocialContext = "withSomeone"
)

// Valid reports whether c is a known social context.
func (c SocialContext) Valid() bool {
	switch c {
	case ContextSolo, ContextWithSomeone:
		return true
	}
	return false
}

// Category groups activities into menu courses.
type Category string

const (
	CategoryStarter    Category = "starter"
	CategoryMain       Category = "main"
	CategoryDessert    Category = "dessert"
	CategoryConnection Category = "connection"
	CategoryLowBattery Category = "lowBattery"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryStarter, CategoryMain, CategoryDessert, CategoryConnection, CategoryLowBattery:
		return true
	}
	return false
}

// Source records where an activity came from.
type Source string

const (
	SourceSeed     Source = "seed"
	SourceAIImport Source = "ai-import"
)

// ModerationStatus is the review state of an activity.
type ModerationStatus string

const (
	ModerationApproved ModerationStatus = "approved"
	ModerationPending  ModerationStatus = "pending"
	ModerationRejected ModerationStatus = "rejected"
)

// Activity is an immutable menu item.
type Activity struct {
	ID               uuid.UUID
	Title            string
	Description      string
	ExpectedMinutes  int
	Energy           Energy
	Context          SocialContext
	Category         Category
	Repeatable       bool
	Tags             []string
	Source           Source
	ModerationStatus ModerationStatus
}

// Validate checks the fields every stored activity must satisfy.
func (a Activity) Validate() error {
	switch {
	case a.ID == uuid.Nil:
		return fmt.Errorf("%w: activity id is required", ErrValidation)
	case strings.TrimSpace(a.Title) == "":
		return fmt.Errorf("%w: activity title is required", ErrValidation)
	case a.ExpectedMinutes <= 0:
		return fmt.Errorf("%w: expected minutes must be > 0", ErrValidation)
	case !a.Energy.Valid():
		return fmt.Errorf("%w: energy %q", ErrInvalidEnergy, a.Energy)
	case !a.Context.Valid():
		return fmt.Errorf("%w: context %q", ErrInvalidContext, a.Context)
	case !a.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrValidation, a.Category)
	}
	return nil
}

// NormalizeTags trims, de-duplicates and sorts tags so they behave as a set.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// ActivityQuery filters the activity catalog. The minute range is inclusive and
// Energy and Context must match exactly.
type ActivityQuery struct {
	MinMinutes int
	MaxMinutes int
	Energy     Energy
	Context    SocialContext
	Exclude    IDSet
}

// Matches reports whether a satisfies the query. Stores without a query
// language filter with it directly.
func (q ActivityQuery) Matches(a Activity) bool {
	if a.ExpectedMinutes < q.MinMinutes || a.ExpectedMinutes > q.MaxMinutes {
		return false
	}
	if a.Energy != q.Energy || a.Context != q.Context {
		return false
	}
	return !q.Exclude.Contains(a.ID)
}
