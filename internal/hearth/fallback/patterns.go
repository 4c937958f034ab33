package fallback

import "regexp"

// Base confidences per pattern class, before penalties.
const (
	confClarification = 0.90
	confSearch        = 0.85
	confUpdate        = 0.85
	confCreateVerb    = 0.90
	confWeekdayTitle  = 0.90
	confFillerCreate  = 0.75
	confKeyword       = 0.60
	confUnclear       = 0.20
	// confReask is used when a clarification answer carried nothing usable
	// and the same question is asked again.
	confReask = 0.50
)

// Independent penalty factors.  They multiply.
const (
	penaltyUnconfidentDate = 0.8
	penaltyNoStart         = 0.7
	penaltyShortTitle      = 0.6
)

const minTitleLen = 3

const weekdayAlt = `sunday|monday|tuesday|wednesday|thursday|friday|saturday|mon|tues?|wed|thu(?:rs?)?|fri|sat|sun`

var (
	// (2) search
	searchLeadRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:show(?:\s+me)?|list|check|what(?:'s|s|\s+is|\s+are|\s+do\s+(?:i|we)\s+have|\s+have\s+(?:i|we)\s+got)|do\s+(?:i|we)\s+have|have\s+(?:i|we)\s+got|is\s+there|are\s+there|any(?:thing)?|am\s+i\s+(?:busy|free)|are\s+we\s+(?:busy|free))\b`)
	searchCueRe  = regexp.MustCompile(`(?i)\b(?:calendar|schedule|agenda|events?|appointments?|plans?|planned|happening|on|busy|free|anything|coming\s+up|upcoming)\b`)
	whenRe       = regexp.MustCompile(`(?i)^\s*when(?:'s|s|\s+is|\s+are|\s+was|\s+do\s+(?:i|we)\s+have)\s+(?:my\s+|our\s+|the\s+)?(.+?)\s*\??\s*$`)
	aboutRe      = regexp.MustCompile(`(?i)\b(?:about|called|named|titled)\s+["']?(.+?)["']?\s*\??\s*$`)
	searchWhoRe  = regexp.MustCompile(`\b(?:for|with|does|has)\s+([A-Z][a-zA-Z'-]+)\b`)

	// (3) move / update
	moveRe   = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:can\s+you\s+|could\s+you\s+)?(?:move|reschedule|push|shift|postpone|bump|change)\s+(?:the\s+|my\s+|our\s+)?(.+?)(?:\s+(?:to|until|till)\s+(.+?))?\s*[.!?]?\s*$`)
	renameRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?rename\s+(?:the\s+|my\s+|our\s+)?(.+?)\s+to\s+["']?(.+?)["']?\s*[.!]?\s*$`)

	// (4) create
	createVerbRe   = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:can\s+you\s+|could\s+you\s+)?(?:schedule|add|create|book|put|set\s+up|plan|make|new\s+event|remind\s+(?:me|us)\s+(?:about|of|to))\b`)
	weekdayTitleRe = regexp.MustCompile(`(?i)^\s*(?:(?:an?\s+)?(?:event|appointment|reminder)\s+)?(?:for\s+|on\s+)?(?:next\s+|this\s+)?(?:` + weekdayAlt + `)\s+(?:at\s+)?(\d{1,2}(?::[0-5]\d)?\s*(?:[ap]\.?m\.?)?)\s+(.+?)\s*[.!]?\s*$`)
	fillerLeadRe   = regexp.MustCompile(`(?i)^\s*(?:(?:i|we)\s+(?:have|'ve\s+got|got)\s+(?:an?|the|my|our)\b|(?:i|we)(?:'m|\s+am|'re|\s+are)?\s+(?:have\s+to|need\s+to|going\s+to|gonna|got\s+to|gotta|must|should|will)\b|there(?:'s|\s+is)\s+an?\b)`)

	// (5) keyword heuristic
	eventKeywordRe = regexp.MustCompile(`(?i)\b(?:appointment|meeting|party|practice|game|lesson|class|dinner|lunch|breakfast|brunch|birthday|event|recital|playdate|checkup|check-up|dentist|doctor|vet|haircut|concert|match|rehearsal|training|visit|trip|flight|reservation|conference|interview)s?\b`)

	// create supplements
	allDayRe    = regexp.MustCompile(`(?i)\ball[\s-]day\b`)
	attendeesRe = regexp.MustCompile(`\b[Ww]ith\s+([A-Z][\w'-]*(?:(?:\s*,\s*|\s*,?\s+(?:and|&)\s+)[A-Z][\w'-]*)*)`)
	nameSplitRe = regexp.MustCompile(`\s*,\s*(?:and\s+|&\s+)?|\s+(?:and|&)\s+`)
	locationRe  = regexp.MustCompile(`(?i)\s+(?:at|in)\s+((?:the\s+)?[a-z][\w'&.-]*(?:\s+[\w'&.-]+){0,4})\s*[.!]?\s*$`)
	durationRe  = regexp.MustCompile(`(?i)\bfor\s+(\d{1,3}|an?|one|two|three|four|half\s+an)\s+(hours?|hrs?|minutes?|mins?)\b`)

	// title clean-up
	fillerWordsRe  = regexp.MustCompile(`(?i)\b(?:have\s+to|has\s+to|need\s+to|needs\s+to|going\s+to|gonna|got\s+to|gotta|attend(?:ing)?|go\s+to)\b`)
	calendarWordRe = regexp.MustCompile(`(?i)\b(?:(?:to|on|in|into)\s+(?:my|our|the)\s+(?:calendar|schedule)|(?:an?\s+)?event\s+(?:for|on)|reminder\s+for)\b`)
	leadWordsRe    = regexp.MustCompile(`(?i)^(?:(?:a|an|the|my|our|for|on|at|in|to|by|from|and|with|about|of)\s+)+`)
	trailWordsRe   = regexp.MustCompile(`(?i)(?:\s+(?:a|an|the|for|on|at|in|to|by|from|and|with|of|around|about))+$`)
	spacesRe       = regexp.MustCompile(`\s{2,}`)

	// words that never name a place or a person
	notPlaceRe = regexp.MustCompile(`(?i)^(?:the\s+)?(?:noon|midday|midnight|night|morning|afternoon|evening|\d.*|` + weekdayAlt + `|today|tonight|tomorrow|week|month)\b`)
	notNameRe  = regexp.MustCompile(`(?i)^(?:` + weekdayAlt + `|today|tonight|tomorrow|next|this|the|me|us|everyone|everybody)$`)
)
