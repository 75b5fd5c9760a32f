package serial

import "testing"

func TestParseCurrentReplyAcceptsEqualsForm(t *testing.T) {
	value, err := parseCurrentReply("I=1.250000\n")
	if err != nil {
		t.Fatalf("parseCurrentReply: %v", err)
	}
	if value != 1.25 {
		t.Fatalf("expected 1.25, got %v", value)
	}
}

func TestParseCurrentReplyAcceptsSpaceForm(t *testing.T) {
	value, err := parseCurrentReply("I -0.5\n")
	if err != nil {
		t.Fatalf("parseCurrentReply: %v", err)
	}
	if value != -0.5 {
		t.Fatalf("expected -0.5, got %v", value)
	}
}

func TestParseCurrentReplyRejectsGarbage(t *testing.T) {
	if _, err := parseCurrentReply("nope\n"); err == nil {
		t.Fatalf("expected an error for an unrecognized reply")
	}
}
