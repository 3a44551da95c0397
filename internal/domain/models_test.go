package domain

import (
	"testing"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusActive, StatusCompleted, StatusLead, StatusAbandoned} {
		if !ValidStatus(s) {
			t.Fatalf("%s should be valid", s)
		}
	}
	for _, s := range []string{"", "archived", "ACTIVE", "done"} {
		if ValidStatus(s) {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	if !TerminalStatus(StatusCompleted) || !TerminalStatus(StatusAbandoned) {
		t.Fatalf("completed/abandoned are terminal")
	}
	if TerminalStatus(StatusActive) || TerminalStatus(StatusLead) {
		t.Fatalf("active/lead are not terminal")
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		StatusActive:    "Active",
		StatusCompleted: "Completed",
		StatusLead:      "Lead",
		StatusAbandoned: "Abandoned",
		"weird":         "weird", // unknown keys pass through
	}
	for in, want := range cases {
		if got := StatusLabel(in); got != want {
			t.Fatalf("StatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuickReplies_ValueAndScan(t *testing.T) {
	// Empty slice stores as NULL.
	var empty QuickReplies
	v, err := empty.Value()
	if err != nil || v != nil {
		t.Fatalf("empty Value: %v, %v", v, err)
	}

	qr := QuickReplies{{Label: "Yes", Payload: "confirm"}, {Label: "No", Payload: "cancel"}}
	v, err = qr.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		t.Fatalf("expected JSON string, got %T", v)
	}

	var back QuickReplies
	if err := back.Scan(s); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if len(back) != 2 || back[0].Payload != "confirm" {
		t.Fatalf("round trip broken: %+v", back)
	}

	// Byte slices and NULLs scan too.
	var fromBytes QuickReplies
	if err := fromBytes.Scan([]byte(s)); err != nil || len(fromBytes) != 2 {
		t.Fatalf("Scan bytes: %+v, %v", fromBytes, err)
	}
	var fromNil QuickReplies
	if err := fromNil.Scan(nil); err != nil || fromNil != nil {
		t.Fatalf("Scan nil: %+v, %v", fromNil, err)
	}

	// Unsupported types are rejected.
	var bad QuickReplies
	if err := bad.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported scan type")
	}
}
