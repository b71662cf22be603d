package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNewEnvelope(t *testing.T) {
	env, err := New(TypeCustomerDeleted, CustomerData{CustomerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.EventID == uuid.Nil {
		t.Fatalf("expected event id to be set")
	}
	if env.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
	var data CustomerData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if data.CustomerID == uuid.Nil {
		t.Fatalf("expected customer id in payload")
	}
}

func TestParseSalesEvent(t *testing.T) {
	if got := ParseSalesEvent(TypeTaskDueSoon); got != TaskDueSoon {
		t.Fatalf("expected TaskDueSoon, got %v", got)
	}
	if got := ParseSalesEvent("task.exploded"); got != SalesUnknown {
		t.Fatalf("expected SalesUnknown for unrecognized type, got %v", got)
	}
}

func TestParseApprovalEvent(t *testing.T) {
	for eventType, want := range map[string]ApprovalEvent{
		TypeApprovalRequested: ApprovalRequested,
		TypeApprovalApproved:  ApprovalApproved,
		TypeApprovalRejected:  ApprovalRejected,
		TypeApprovalRecalled:  ApprovalRecalled,
	} {
		if got := ParseApprovalEvent(eventType); got != want {
			t.Fatalf("%s: expected %v, got %v", eventType, want, got)
		}
	}
	if got := ParseApprovalEvent(""); got != ApprovalUnknown {
		t.Fatalf("expected ApprovalUnknown for empty type")
	}
}
