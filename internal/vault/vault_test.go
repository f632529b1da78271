package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/ids"
	"github.com/shadowglen/vaultengine/internal/txn"
)

func testKey(t *testing.T) (boxprovider.Provider, []byte) {
	t.Helper()
	p := boxprovider.XChaCha20Poly1305{}
	key := make([]byte, p.KeyLength())
	if err := p.RandomBytes(key); err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	return p, key
}

func TestWriteThenGetGuard(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-1"))

	if err := v.Write(key, recordID, []byte("hello"), [txn.RecordHintSize]byte{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []byte
	err := v.GetGuard(key, recordID, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if err != nil {
		t.Fatalf("GetGuard: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestGetGuardZeroisesBufferAfterCallbackReturns(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-1"))

	if err := v.Write(key, recordID, []byte("hello"), [txn.RecordHintSize]byte{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var aliased []byte
	err := v.GetGuard(key, recordID, func(p []byte) error {
		// Keep the exact backing slice fn was given; GetGuard's buffer
		// is destroyed (and zeroised) once this callback returns, so
		// this alias should read back as zero afterward.
		aliased = p
		return nil
	})
	if err != nil {
		t.Fatalf("GetGuard: %v", err)
	}
	for i, b := range aliased {
		if b != 0 {
			t.Fatalf("byte %d not zeroised after GetGuard returned: %v", i, aliased)
		}
	}
}

func TestWriteUpdatesExistingRecord(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-2"))

	if err := v.Write(key, recordID, []byte("v1"), [txn.RecordHintSize]byte{}); err != nil {
		t.Fatalf("Write v1: %v", err)
	}
	if err := v.Write(key, recordID, []byte("v2"), [txn.RecordHintSize]byte{}); err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	var got []byte
	v.GetGuard(key, recordID, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("got %q, want v2", got)
	}
	if len(v.Records()) != 1 {
		t.Fatalf("expected 1 live record, got %d", len(v.Records()))
	}
}

func TestRevokeMakesRecordUnreadableAndIdempotent(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-3"))
	_ = v.Write(key, recordID, []byte("secret"), [txn.RecordHintSize]byte{})

	if err := v.RevokeRecord(key, recordID); err != nil {
		t.Fatalf("RevokeRecord: %v", err)
	}
	if err := v.RevokeRecord(key, recordID); err != nil {
		t.Fatalf("second RevokeRecord should be a no-op, got: %v", err)
	}

	err := v.GetGuard(key, recordID, func([]byte) error { return nil })
	if !errors.Is(err, ErrRecordRevoked) {
		t.Fatalf("GetGuard after revoke = %v, want ErrRecordRevoked", err)
	}
	if v.ContainsRecord(recordID) {
		t.Fatalf("ContainsRecord should be false after revoke")
	}
}

func TestRevokeThenRewriteAllocatesFreshChain(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-4"))

	_ = v.Write(key, recordID, []byte("v1"), [txn.RecordHintSize]byte{})
	firstChain := v.recordChain[recordID]

	_ = v.RevokeRecord(key, recordID)
	if err := v.Write(key, recordID, []byte("v2-after-revoke"), [txn.RecordHintSize]byte{}); err != nil {
		t.Fatalf("Write after revoke: %v", err)
	}
	secondChain := v.recordChain[recordID]

	if firstChain == secondChain {
		t.Fatalf("expected a fresh chain id after revoke+rewrite")
	}

	var got []byte
	if err := v.GetGuard(key, recordID, func(p []byte) error {
		got = append(got, p...)
		return nil
	}); err != nil {
		t.Fatalf("GetGuard: %v", err)
	}
	if !bytes.Equal(got, []byte("v2-after-revoke")) {
		t.Fatalf("got %q, want v2-after-revoke", got)
	}
}

func TestGarbageCollectDropsRevokedChainsAndBlobs(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-5"))
	_ = v.Write(key, recordID, []byte("gone soon"), [txn.RecordHintSize]byte{})
	_ = v.RevokeRecord(key, recordID)

	before := v.Export()
	if len(before.Chains) != 1 || len(before.Blobs) != 1 {
		t.Fatalf("expected 1 chain and 1 blob before GC, got %d/%d", len(before.Chains), len(before.Blobs))
	}

	dropped, err := v.GarbageCollect(key)
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	after := v.Export()
	if len(after.Chains) != 0 || len(after.Blobs) != 0 {
		t.Fatalf("expected 0 chains and 0 blobs after GC, got %d/%d", len(after.Chains), len(after.Blobs))
	}
}

func TestExecProcTransformsInPlace(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-6"))
	_ = v.Write(key, recordID, []byte("abc"), [txn.RecordHintSize]byte{})

	err := v.ExecProc(key, recordID, [txn.RecordHintSize]byte{}, func(pt []byte) ([]byte, error) {
		upper := make([]byte, len(pt))
		for i, b := range pt {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			upper[i] = b
		}
		return upper, nil
	})
	if err != nil {
		t.Fatalf("ExecProc: %v", err)
	}

	var got []byte
	v.GetGuard(key, recordID, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if !bytes.Equal(got, []byte("ABC")) {
		t.Fatalf("got %q, want ABC", got)
	}
}

func TestExecProcFailurePropagatesAsProcedureFailed(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-7"))
	_ = v.Write(key, recordID, []byte("abc"), [txn.RecordHintSize]byte{})

	sentinel := errors.New("boom")
	err := v.ExecProc(key, recordID, [txn.RecordHintSize]byte{}, func([]byte) ([]byte, error) {
		return nil, sentinel
	})
	var pf *ProcedureFailed
	if !errors.As(err, &pf) {
		t.Fatalf("ExecProc error = %v, want *ProcedureFailed", err)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("ExecProc error does not wrap sentinel")
	}
}

func TestExportLoadRoundTrip(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	r1 := ids.DeriveRecordID([]byte("vault"), []byte("r1"))
	r2 := ids.DeriveRecordID([]byte("vault"), []byte("r2"))
	_ = v.Write(key, r1, []byte("one"), [txn.RecordHintSize]byte{})
	_ = v.Write(key, r2, []byte("two"), [txn.RecordHintSize]byte{})

	state := v.Export()
	reloaded, err := Load(p, key, state)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var got []byte
	if err := reloaded.GetGuard(key, r1, func(p []byte) error {
		got = append(got, p...)
		return nil
	}); err != nil {
		t.Fatalf("GetGuard after reload: %v", err)
	}
	if !bytes.Equal(got, []byte("one")) {
		t.Fatalf("got %q, want one", got)
	}
	if len(reloaded.Records()) != 2 {
		t.Fatalf("expected 2 records after reload, got %d", len(reloaded.Records()))
	}
}

func TestRecordInfosReportsHintsForLiveRecordsOnly(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	hint1 := [txn.RecordHintSize]byte{'a'}
	hint2 := [txn.RecordHintSize]byte{'b'}
	r1 := ids.DeriveRecordID([]byte("vault"), []byte("ri-1"))
	r2 := ids.DeriveRecordID([]byte("vault"), []byte("ri-2"))

	_ = v.Write(key, r1, []byte("one"), hint1)
	_ = v.Write(key, r2, []byte("two"), hint2)
	_ = v.Write(key, r2, []byte("two-v2"), hint2)
	_ = v.RevokeRecord(key, r2)
	_ = v.Write(key, r2, []byte("two-v3"), hint2)

	infos, err := v.RecordInfos(key)
	if err != nil {
		t.Fatalf("RecordInfos: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 live records, got %d", len(infos))
	}
	byID := make(map[ids.RecordID]RecordInfo, len(infos))
	for _, info := range infos {
		byID[info.RecordID] = info
	}
	if got, ok := byID[r1]; !ok || got.Hint != hint1 {
		t.Fatalf("r1 hint = %v, ok = %v, want %v", got.Hint, ok, hint1)
	}
	if got, ok := byID[r2]; !ok || got.Hint != hint2 {
		t.Fatalf("r2 hint (post revoke+rewrite) = %v, ok = %v, want %v", got.Hint, ok, hint2)
	}
}

func TestLoadRejectsCorruptChainButKeepsOthers(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	good := ids.DeriveRecordID([]byte("vault"), []byte("good"))
	bad := ids.DeriveRecordID([]byte("vault"), []byte("bad"))
	_ = v.Write(key, good, []byte("fine"), [txn.RecordHintSize]byte{})
	_ = v.Write(key, bad, []byte("corrupt me"), [txn.RecordHintSize]byte{})

	state := v.Export()
	badChain := state.Chains[v.recordChain[bad]]
	// Drop the Init transaction to break the chain's integrity.
	state.Chains[v.recordChain[bad]] = badChain[1:]

	reloaded, err := Load(p, key, state)
	if err == nil {
		t.Fatalf("expected Load to report the corrupted chain")
	}
	var cie *ChainIntegrityError
	if !errors.As(err, &cie) {
		t.Fatalf("error = %v, want *ChainIntegrityError", err)
	}

	if !reloaded.ContainsRecord(good) {
		t.Fatalf("good record should still load despite the other chain's corruption")
	}
	if reloaded.ContainsRecord(bad) {
		t.Fatalf("corrupted record should not have loaded")
	}
}

func TestDeclaredLengthMismatchPoisonsVault(t *testing.T) {
	p, key := testKey(t)
	v := New(p)
	recordID := ids.DeriveRecordID([]byte("vault"), []byte("record-8"))
	_ = v.Write(key, recordID, []byte("abc"), [txn.RecordHintSize]byte{})

	chainID := v.recordChain[recordID]
	entry := v.chains[chainID]

	blobID, err := ids.RandomBlobID()
	if err != nil {
		t.Fatalf("RandomBlobID: %v", err)
	}
	sealedBlob, err := txn.SealBlob(p, key, blobID, []byte("abc"))
	if err != nil {
		t.Fatalf("SealBlob: %v", err)
	}
	// Declare a plaintext length that doesn't match what was actually sealed.
	badTx := txn.NewData(chainID, nextCounter(entry), recordID, blobID, 999, [txn.RecordHintSize]byte{})
	sealed, err := txn.Seal(p, key, badTx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	v.blobs[blobID] = sealedBlob
	entry.txns = append(entry.txns, sealed)

	err = v.GetGuard(key, recordID, func([]byte) error { return nil })
	var vie *VaultIntegrityError
	if !errors.As(err, &vie) {
		t.Fatalf("GetGuard error = %v, want *VaultIntegrityError", err)
	}

	// The vault is now poisoned: every later operation returns the same error.
	if err := v.Write(key, recordID, []byte("v2"), [txn.RecordHintSize]byte{}); !errors.Is(err, vie) {
		t.Fatalf("Write after poisoning = %v, want %v", err, vie)
	}
	if v.ContainsRecord(recordID) {
		t.Fatalf("ContainsRecord should report false once the vault is poisoned")
	}
}
