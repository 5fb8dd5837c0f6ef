package telephony

import (
	"strings"
	"testing"
)

func TestDialNumberTwiML(t *testing.T) {
	xml, err := DialNumberTwiML("+15551112222", "+15550000000")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Dial callerId="+15550000000" answerOnBridge="true">`,
		`<Number>+15551112222</Number>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
}

func TestDialNumberTwiML_OmitsEmptyCallerID(t *testing.T) {
	xml, err := DialNumberTwiML("+15551112222", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(xml, "callerId") {
		t.Fatalf("expected no callerId attribute: %s", xml)
	}
}

func TestConferenceTwiML(t *testing.T) {
	xml, err := ConferenceTwiML("bulk-15551112222-1-1", true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := `<Conference startConferenceOnEnter="true" endConferenceOnExit="true" beep="false">bulk-15551112222-1-1</Conference>`
	if !strings.Contains(xml, want) {
		t.Fatalf("expected %q in xml: %s", want, xml)
	}

	xml, _ = ConferenceTwiML("room", false)
	if !strings.Contains(xml, `endConferenceOnExit="false"`) {
		t.Fatalf("expected endConferenceOnExit false: %s", xml)
	}
}

func TestTwiMLRequiresTarget(t *testing.T) {
	if _, err := DialNumberTwiML(" ", ""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DialClientTwiML("", ""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ConferenceTwiML("", true); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSayTwiMLEscapes(t *testing.T) {
	xml, err := SayHangupTwiML("a < b & c")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>a &lt; b &amp; c</Say><Hangup></Hangup>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}
