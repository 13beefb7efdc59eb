package compliance

import (
	"strings"
	"testing"
)

func TestDisclaimerAppendsFooter(t *testing.T) {
	d := NewDisclaimer(DefaultDisclaimerConfig())

	body := d.Apply("Your consultation is confirmed.")
	if !strings.HasPrefix(body, "Your consultation is confirmed.") {
		t.Errorf("original body should be preserved, got %q", body)
	}
	if !strings.HasSuffix(body, d.Text()) {
		t.Errorf("disclaimer should be appended, got %q", body)
	}
}

func TestDisclaimerIsIdempotent(t *testing.T) {
	d := NewDisclaimer(DefaultDisclaimerConfig())

	once := d.Apply("See you tomorrow.")
	twice := d.Apply(once)
	if once != twice {
		t.Errorf("second apply changed body:\n%q\n%q", once, twice)
	}
}

func TestDisclaimerDisabled(t *testing.T) {
	d := NewDisclaimer(DisclaimerConfig{Enabled: false})

	if got := d.Apply("hello"); got != "hello" {
		t.Errorf("disabled disclaimer should pass body through, got %q", got)
	}
}

func TestDisclaimerLevels(t *testing.T) {
	short := NewDisclaimer(DisclaimerConfig{Enabled: true, Level: DisclaimerShort}).Text()
	full := NewDisclaimer(DisclaimerConfig{Enabled: true, Level: DisclaimerFull}).Text()
	custom := NewDisclaimer(DisclaimerConfig{Enabled: true, CustomText: "Managed by Mercy General."}).Text()

	if short == full {
		t.Error("short and full levels should differ")
	}
	if len(short) >= len(full) {
		t.Errorf("short disclaimer should be shorter than full: %d vs %d", len(short), len(full))
	}
	if custom != "Managed by Mercy General." {
		t.Errorf("custom text should win, got %q", custom)
	}
}
