package extension

import "fmt"

// Severity ranks a validation message.
type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityWarn  Severity = "WARN"
	SeverityInfo  Severity = "INFO"
)

// Message codes emitted by the pipeline. Registration-time contract
// violations are not messages; they are tagged errors (see pkg/booterr).
const (
	CodeMissingID                 = "MISSING_ID"
	CodeInvalidID                 = "INVALID_ID"
	CodeNoCapabilities            = "NO_CAPABILITIES"
	CodeInvalidVersion            = "INVALID_VERSION"
	CodeHostVersionTooLow         = "HOST_VERSION_TOO_LOW"
	CodeInvalidCapabilityName     = "INVALID_CAPABILITY_NAME"
	CodeInvalidCapabilityKind     = "INVALID_CAPABILITY_KIND"
	CodeNonSerializableMetadata   = "NON_SERIALIZABLE_METADATA"
	CodeDuplicateID               = "DUPLICATE_ID"
	CodeMalformedMask             = "MALFORMED_MASK"
	CodeInvalidMaskEntry          = "INVALID_MASK_ENTRY"
	CodeCapabilityConflict        = "CAPABILITY_CONFLICT"
	CodeMissingRequiredDependency = "MISSING_REQUIRED_DEPENDENCY"
	CodeMissingRequiredCapability = "MISSING_REQUIRED_CAPABILITY"
	CodeOptionalMissing           = "OPTIONAL_MISSING"
	CodeDependencyCycle           = "DEPENDENCY_CYCLE"
	CodeInvariantViolation        = "INVARIANT_VIOLATION"
)

// Message is the sole error-reporting currency of the pipeline. Validation
// and resolution accumulate Messages; they never panic and never abort
// sibling extensions.
type Message struct {
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Text        string   `json:"text"`
	ExtensionID string   `json:"extension_id,omitempty"`
}

func (m Message) String() string {
	if m.ExtensionID == "" {
		return fmt.Sprintf("%s %s: %s", m.Severity, m.Code, m.Text)
	}
	return fmt.Sprintf("%s %s [%s]: %s", m.Severity, m.Code, m.ExtensionID, m.Text)
}

// Errorf builds an ERROR message attributed to an extension.
func Errorf(code, extensionID, format string, args ...any) Message {
	return Message{
		Severity:    SeverityError,
		Code:        code,
		Text:        fmt.Sprintf(format, args...),
		ExtensionID: extensionID,
	}
}

// Warnf builds a WARN message attributed to an extension.
func Warnf(code, extensionID, format string, args ...any) Message {
	return Message{
		Severity:    SeverityWarn,
		Code:        code,
		Text:        fmt.Sprintf(format, args...),
		ExtensionID: extensionID,
	}
}

// HasErrors reports whether any message in msgs is ERROR severity.
func HasErrors(msgs []Message) bool {
	for _, m := range msgs {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}
