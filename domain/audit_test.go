package domain

import "testing"

func TestAuditLogEntry_TableName(t *testing.T) {
	if (AuditLogEntry{}).TableName() != "audit_logs" {
		t.Fatalf("unexpected table name")
	}
}

func TestActionConstants(t *testing.T) {
	if ActionJobApproved == ActionJobRejected {
		t.Fatalf("action constants must be distinct")
	}
}
