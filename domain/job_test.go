package domain

import "testing"

func TestJob_NeedsAudit(t *testing.T) {
	j := &Job{Status: JobPendingAudit}
	if !j.NeedsAudit() {
		t.Fatalf("expected pending_audit job to need audit")
	}
	j.Status = JobCompleted
	if j.NeedsAudit() {
		t.Fatalf("expected completed job to not need audit")
	}
}

func TestJob_TableName(t *testing.T) {
	if (Job{}).TableName() != "jobs" {
		t.Fatalf("unexpected table name")
	}
}

func TestCorrectedConfidence(t *testing.T) {
	if CorrectedConfidence != 100 {
		t.Fatalf("expected corrected confidence to be pinned at 100")
	}
}
