// Package intent defines the structured representation of what a household
// member wants the calendar to do, and the strategy contract shared by the
// model-backed and deterministic parsers.
//
// An Intent is a closed sum type: Kind selects exactly one payload.  Callers
// switch on Kind and read the matching pointer; the constructors below are
// the only supported way to build a value, which keeps tag and payload in
// agreement.
package intent

import (
	"fmt"
	"time"
)

// Kind tags the variant carried by an Intent.
type Kind string

const (
	KindCreate  Kind = "create"
	KindSearch  Kind = "search"
	KindUpdate  Kind = "update"
	KindUnclear Kind = "unclear"
)

// Clarification names the missing piece of a create intent.
type Clarification string

const (
	ClarifyNone Clarification = ""
	// ClarifyDate means no date could be found in the message.
	ClarifyDate Clarification = "date"
	// ClarifyTime means the date is known but the start time is not.
	ClarifyTime Clarification = "time"
)

// CreatePayload describes a new calendar event.
type CreatePayload struct {
	Title    string
	StartAt  *time.Time
	EndAt    *time.Time
	Location string
	Notes    string
	AllDay   bool
	// Attendees are family member names as written in the message.
	Attendees []string
	// NeedsClarification is set when the executor must ask for more input
	// before anything can be created.
	NeedsClarification Clarification
	// Date is the resolved local calendar day ("2006-01-02") when a date
	// was found without a time.  It is carried into the clarification slot.
	Date string
	// Time is a local clock time ("15:04") given without a date.
	Time string
}

// SearchPayload describes a calendar query.  All fields are optional.
type SearchPayload struct {
	Query    string
	From     *time.Time
	To       *time.Time
	Attendee string
}

// Patch lists the fields an update changes.  Nil/empty means unchanged.
type Patch struct {
	Title    string
	StartAt  *time.Time
	EndAt    *time.Time
	Location string
	// KeepTime marks StartAt as a new day only; the event keeps its local
	// clock time and duration.
	KeepTime bool
	// Time ("15:04") moves the event to a new local clock time on the day
	// it already has.  Ignored when StartAt is set.
	Time string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == "" && p.StartAt == nil && p.EndAt == nil && p.Location == "" && p.Time == ""
}

// UpdatePayload targets an existing event either by ID or by free-text
// title.
type UpdatePayload struct {
	EventTitle string
	EventID    string
	Patch      Patch
}

// Intent is the outcome of parsing one message.
type Intent struct {
	Kind       Kind
	Confidence float64

	Create *CreatePayload
	Search *SearchPayload
	Update *UpdatePayload
}

// NewCreate returns a create intent.
func NewCreate(p CreatePayload, confidence float64) Intent {
	return Intent{Kind: KindCreate, Confidence: clamp(confidence), Create: &p}
}

// NewSearch returns a search intent.
func NewSearch(p SearchPayload, confidence float64) Intent {
	return Intent{Kind: KindSearch, Confidence: clamp(confidence), Search: &p}
}

// NewUpdate returns an update intent.
func NewUpdate(p UpdatePayload, confidence float64) Intent {
	return Intent{Kind: KindUpdate, Confidence: clamp(confidence), Update: &p}
}

// NewUnclear returns an intent that carries no payload.
func NewUnclear(confidence float64) Intent {
	return Intent{Kind: KindUnclear, Confidence: clamp(confidence)}
}

// Validate checks that exactly the payload named by Kind is present and
// that the confidence lies in [0,1].
func (i Intent) Validate() error {
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("intent: confidence %.2f out of range", i.Confidence)
	}
	set := 0
	for _, present := range []bool{i.Create != nil, i.Search != nil, i.Update != nil} {
		if present {
			set++
		}
	}
	switch i.Kind {
	case KindCreate:
		if i.Create == nil || set != 1 {
			return fmt.Errorf("intent: create must carry only a create payload")
		}
	case KindSearch:
		if i.Search == nil || set != 1 {
			return fmt.Errorf("intent: search must carry only a search payload")
		}
	case KindUpdate:
		if i.Update == nil || set != 1 {
			return fmt.Errorf("intent: update must carry only an update payload")
		}
	case KindUnclear:
		if set != 0 {
			return fmt.Errorf("intent: unclear must not carry a payload")
		}
	default:
		return fmt.Errorf("intent: unknown kind %q", i.Kind)
	}
	return nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
