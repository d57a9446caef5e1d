package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDString tests ID string conversion
func TestIDString(t *testing.T) {
	id := ID("test-123")
	if id.String() != "test-123" {
		t.Errorf("Expected String() to return 'test-123', got '%s'", id.String())
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if NewID().IsEmpty() {
		t.Error("Expected generated ID to be non-empty")
	}
}

func TestParseRunID(t *testing.T) {
	runID := NewRunID()
	parsed, err := ParseRunID(runID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != runID {
		t.Errorf("Expected %s, got %s", runID, parsed)
	}

	if _, err := ParseRunID("  "); err == nil {
		t.Error("Expected error for blank run ID")
	}
	if _, err := ParseRunID("not-a-uuid"); err == nil {
		t.Error("Expected error for malformed run ID")
	}
}
