package metrics

import "testing"

func TestNewAndIncrDoNotPanic(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Incr(VaultWrite, 1)
	s.Incr(VaultRevoke, 1)
	s.Incr(VaultGCDropped, 3)
	s.Incr(SnapshotCommit, 1)
	s.Incr(SnapshotLoad, 1)
}

func TestNoOpSinkIsSafeToUse(t *testing.T) {
	s := NoOp()
	s.Incr(VaultWrite, 1)

	var nilSink *Sink
	nilSink.Incr(VaultWrite, 1)
}
