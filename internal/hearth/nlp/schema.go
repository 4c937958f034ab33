package nlp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaName labels IntentSchema in structured-output requests.
const SchemaName = "calendar_intent"

// IntentSchema is the reply contract: one of the four variant payloads,
// selected by "intent", plus a top-level confidence in [0,1].
//
// Date-times are ISO-8601 with offset.  When the model cannot compute an
// absolute instant it may instead copy the phrase into "when" / "newWhen",
// which the parser resolves locally.
const IntentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["intent", "confidence"],
  "properties": {
    "intent": {"enum": ["create", "search", "update", "unclear"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "create": {
      "type": "object",
      "required": ["title"],
      "properties": {
        "title": {"type": "string", "minLength": 1},
        "startAt": {"type": ["string", "null"]},
        "endAt": {"type": ["string", "null"]},
        "when": {"type": ["string", "null"]},
        "location": {"type": ["string", "null"]},
        "notes": {"type": ["string", "null"]},
        "allDay": {"type": "boolean"},
        "attendees": {"type": "array", "items": {"type": "string"}},
        "needsClarification": {"enum": ["date", "time", null]}
      }
    },
    "search": {
      "type": "object",
      "properties": {
        "query": {"type": ["string", "null"]},
        "from": {"type": ["string", "null"]},
        "to": {"type": ["string", "null"]},
        "when": {"type": ["string", "null"]},
        "attendee": {"type": ["string", "null"]}
      }
    },
    "update": {
      "type": "object",
      "properties": {
        "eventTitle": {"type": ["string", "null"]},
        "eventId": {"type": ["string", "null"]},
        "newWhen": {"type": ["string", "null"]},
        "patch": {
          "type": "object",
          "properties": {
            "title": {"type": ["string", "null"]},
            "startAt": {"type": ["string", "null"]},
            "endAt": {"type": ["string", "null"]},
            "location": {"type": ["string", "null"]}
          }
        }
      },
      "anyOf": [
        {"required": ["eventTitle"]},
        {"required": ["eventId"]}
      ]
    }
  },
  "allOf": [
    {"if": {"properties": {"intent": {"const": "create"}}}, "then": {"required": ["create"]}},
    {"if": {"properties": {"intent": {"const": "search"}}}, "then": {"required": ["search"]}},
    {"if": {"properties": {"intent": {"const": "update"}}}, "then": {"required": ["update"]}}
  ]
}`

var compiledSchema = jsonschema.MustCompileString("calendar_intent.schema.json", IntentSchema)

// reply mirrors IntentSchema.
type reply struct {
	Intent     string       `json:"intent"`
	Confidence float64      `json:"confidence"`
	Create     *createReply `json:"create"`
	Search     *searchReply `json:"search"`
	Update     *updateReply `json:"update"`
}

type createReply struct {
	Title              string   `json:"title"`
	StartAt            *string  `json:"startAt"`
	EndAt              *string  `json:"endAt"`
	When               *string  `json:"when"`
	Location           *string  `json:"location"`
	Notes              *string  `json:"notes"`
	AllDay             bool     `json:"allDay"`
	Attendees          []string `json:"attendees"`
	NeedsClarification *string  `json:"needsClarification"`
}

type searchReply struct {
	Query    *string `json:"query"`
	From     *string `json:"from"`
	To       *string `json:"to"`
	When     *string `json:"when"`
	Attendee *string `json:"attendee"`
}

type updateReply struct {
	EventTitle *string `json:"eventTitle"`
	EventID    *string `json:"eventId"`
	NewWhen    *string `json:"newWhen"`
	Patch      struct {
		Title    *string `json:"title"`
		StartAt  *string `json:"startAt"`
		EndAt    *string `json:"endAt"`
		Location *string `json:"location"`
	} `json:"patch"`
}

// decodeReply repairs content (code fences, trailing commas, single
// quotes), validates it against IntentSchema and decodes it.
func decodeReply(content string) (*reply, error) {
	raw := stripFences(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}
	if !json.Valid([]byte(raw)) {
		repaired, err := jsonrepair.JSONRepair(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: repair: %v", ErrMalformedOutput, err)
		}
		raw = repaired
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedOutput, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrMalformedOutput, err)
	}

	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrMalformedOutput, err)
	}
	return &r, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
