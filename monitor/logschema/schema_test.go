package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate(EventRetry, map[string]interface{}{
		"symbol":  "XAU/USD",
		"attempt": 2,
		"delayMs": int64(8000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate(EventRetry, map[string]interface{}{
		"symbol": "XAU/USD",
	})
	if err == nil || err.Error() != "missing fields: attempt,delayMs" {
		t.Fatalf("expected error for missing fields, got %v", err)
	}
	if err := Validate("unknown_event", nil); err != nil {
		t.Fatalf("unknown events are not validated: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) != 5 {
		t.Fatalf("expected 5 schemas, got %v", names)
	}
	found := false
	for _, n := range names {
		if n == EventGiveUp {
			found = true
		}
	}
	if !found {
		t.Fatalf("%s not found in schemas", EventGiveUp)
	}
}
