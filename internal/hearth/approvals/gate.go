package approvals

// ConfidenceThreshold is the confidence below which a non-destructive write
// must be confirmed.
const ConfidenceThreshold = 0.7

// ReadOnlyTools never change state and are never gated.
var ReadOnlyTools = map[string]bool{
	"calendar.search": true,
	"prefs.getBulk":   true,
}

// DestructiveTools are always gated, however confident the parser was.
var DestructiveTools = map[string]bool{
	"calendar.delete": true,
}

// IsReadOnly reports whether tool only reads.
func IsReadOnly(tool string) bool {
	return ReadOnlyTools[tool]
}

// IsDestructive reports whether tool is hard to undo.
func IsDestructive(tool string) bool {
	return DestructiveTools[tool]
}

// RequiresConfirmation decides whether a tool call must be confirmed by the
// user before it runs.  The checks are ordered: read-only tools pass,
// destructive calls are always gated, and anything else is gated when
// confidence is below ConfidenceThreshold.
func RequiresConfirmation(tool string, confidence float64, destructive bool) bool {
	switch {
	case IsReadOnly(tool):
		return false
	case destructive:
		return true
	case confidence < ConfidenceThreshold:
		return true
	default:
		return false
	}
}
