package compliance

import (
	"fmt"
	"strings"
)

// DisclaimerLevel represents the verbosity of the disclaimer.
type DisclaimerLevel string

const (
	// DisclaimerShort is the shortest disclaimer.
	DisclaimerShort DisclaimerLevel = "short"
	// DisclaimerMedium is a moderate disclaimer.
	DisclaimerMedium DisclaimerLevel = "medium"
	// DisclaimerFull is the most comprehensive disclaimer.
	DisclaimerFull DisclaimerLevel = "full"
)

// Disclaimer templates
const (
	disclaimerShortText = "Automated message. Not medical advice."

	disclaimerMediumText = "This is an automated message from CareLink. For medical advice, please consult your provider."

	disclaimerFullText = "This is an automated message from the CareLink scheduling service. The information provided is general in nature and not a substitute for professional medical advice. Please consult with a licensed healthcare provider for medical guidance."
)

// DisclaimerConfig configures the disclaimer appended to outbound email.
type DisclaimerConfig struct {
	// Level determines which disclaimer template to use.
	Level DisclaimerLevel
	// Enabled controls whether disclaimers are added.
	Enabled bool
	// CustomText overrides the default template.
	CustomText string
}

// DefaultDisclaimerConfig returns sensible defaults.
func DefaultDisclaimerConfig() DisclaimerConfig {
	return DisclaimerConfig{
		Level:   DisclaimerMedium,
		Enabled: true,
	}
}

// Disclaimer appends a care disclaimer to outbound notification email bodies.
type Disclaimer struct {
	config DisclaimerConfig
}

// NewDisclaimer creates a disclaimer appender.
func NewDisclaimer(config DisclaimerConfig) *Disclaimer {
	return &Disclaimer{config: config}
}

// Text returns the appropriate disclaimer text.
func (d *Disclaimer) Text() string {
	if d.config.CustomText != "" {
		return d.config.CustomText
	}

	switch d.config.Level {
	case DisclaimerShort:
		return disclaimerShortText
	case DisclaimerFull:
		return disclaimerFullText
	default:
		return disclaimerMediumText
	}
}

// Apply appends the disclaimer to body if configured. Bodies that already
// carry the disclaimer pass through unchanged.
func (d *Disclaimer) Apply(body string) string {
	if !d.config.Enabled {
		return body
	}

	disclaimer := d.Text()
	if strings.Contains(body, disclaimer) {
		return body
	}

	return fmt.Sprintf("%s\n\n%s", strings.TrimSpace(body), disclaimer)
}
