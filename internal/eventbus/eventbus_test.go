package eventbus

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalsExpectedFields(t *testing.T) {
	e := Event{Kind: "assigned", CommitID: "abc123", Runner: "localhost:8901"}
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %s", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %s", err)
	}
	if decoded["kind"] != "assigned" || decoded["commit_id"] != "abc123" || decoded["runner"] != "localhost:8901" {
		t.Errorf("unexpected fields: %v", decoded)
	}
}

func TestEventOmitsEmptyOptionalFields(t *testing.T) {
	e := Event{Kind: "registered", Runner: "localhost:8901"}
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %s", err)
	}
	var decoded map[string]interface{}
	json.Unmarshal(body, &decoded)
	if _, present := decoded["commit_id"]; present {
		t.Errorf("commit_id should be omitted when empty: %s", body)
	}
}
