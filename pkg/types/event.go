// Package types provides core data types for the Tidemark pipeline.
package types

import (
	"time"
)

// EventType categorizes a business event. The set is closed; events carrying
// an unknown type are rejected at ingestion.
type EventType string

const (
	EventSignup   EventType = "signup"
	EventLogin    EventType = "login"
	EventQuote    EventType = "quote"
	EventPurchase EventType = "purchase"
	EventClaim    EventType = "claim"
)

// ConversionType is the event subtype counted as a conversion by the overall
// daily aggregate and the session rollup.
const ConversionType = EventPurchase

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case EventSignup, EventLogin, EventQuote, EventPurchase, EventClaim:
		return true
	}
	return false
}

// UnknownCategory is the explicit category used for dimension-derived fields
// when the dimension lookup has no record for the subject. Events with an
// unknown subject are still aggregated under this category.
const UnknownCategory = "unknown"

// Event represents a single business event on the pipeline.
type Event struct {
	// EventID is the unique, stable identifier for the event.
	EventID string `json:"event_id"`

	// Version disambiguates duplicate deliveries of the same EventID.
	// The highest version survives the merge; ties go to the last arrival.
	Version int64 `json:"version"`

	// EventTime is the Unix timestamp (seconds) when the event occurred
	EventTime int64 `json:"event_time"`

	// EventType categorizes the event (e.g., "quote", "purchase")
	EventType EventType `json:"event_type"`

	// SessionID groups events belonging to one user session
	SessionID string `json:"session_id"`

	// UserID identifies the subject; foreign key into the user dimension
	UserID int64 `json:"user_id"`

	// PremiumAmount is the monetary measure in minor currency units
	PremiumAmount int64 `json:"premium_amount"`

	// Channel is the acquisition channel (e.g., "web", "mobile", "agent")
	Channel string `json:"channel"`

	// Attrs carries open extension fields; this is the surface the
	// schema-drift evaluator watches
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// Time returns the event timestamp as a time.Time in UTC.
func (e *Event) Time() time.Time {
	return time.Unix(e.EventTime, 0).UTC()
}

// Day returns the UTC calendar day the event falls on.
func (e *Event) Day() Day {
	return DayOf(e.Time())
}

// Day is a UTC calendar day in "2006-01-02" form, used as the temporal
// component of aggregate grouping keys.
type Day string

// DayOf returns the Day containing t (in UTC).
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format("2006-01-02"))
}

// Before reports whether d sorts before other.
func (d Day) Before(other Day) bool {
	return string(d) < string(other)
}

// DimensionRecord is the current state of one slowly-changing user dimension
// subject. Current state is the highest version seen for the subject;
// out-of-order delivery never regresses it.
type DimensionRecord struct {
	// UserID is the unique subject identifier
	UserID int64 `json:"user_id"`

	// Version is the monotonically increasing change-feed version
	Version int64 `json:"version"`

	// City is the subject's city at this version
	City string `json:"city"`

	// DeviceType is the subject's primary device (e.g., "ios", "android", "desktop")
	DeviceType string `json:"device_type"`

	// SignupDate is the subject's signup day ("2006-01-02")
	SignupDate string `json:"signup_date"`
}
