package vault

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/guarded"
	"github.com/shadowglen/vaultengine/internal/ids"
	"github.com/shadowglen/vaultengine/internal/txn"
)

// chainEntry is one transaction chain: its sealed transactions (kept
// sorted by counter once validated) and whether it carries a
// revocation.
type chainEntry struct {
	txns    [][]byte
	revoked bool
}

// Vault is one enclave of data encrypted under a single key: a set of
// transaction chains, the sealed blobs they reference, and the
// record-id-to-current-chain-id index.
type Vault struct {
	mu          sync.Mutex
	provider    boxprovider.Provider
	mode        guarded.Mode
	chains      map[ids.ChainID]*chainEntry
	blobs       map[ids.BlobID][]byte
	recordChain map[ids.RecordID]ids.ChainID
	poisonErr   error
}

// checkPoisonedLocked must be called with v.mu held. Once a
// VaultIntegrityError has been observed, every later operation fails
// fast with the same error rather than continuing to operate on a
// vault whose invariants are already known broken.
func (v *Vault) checkPoisonedLocked() error {
	return v.poisonErr
}

// New returns an empty vault whose GetGuard buffers are allocated
// under guarded.ModeFull.
func New(provider boxprovider.Provider) *Vault {
	return NewMode(provider, guarded.ModeFull)
}

// NewMode is New with an explicit guarded.Mode, per spec.md §6's
// guarded_buffer_mode option.
func NewMode(provider boxprovider.Provider, mode guarded.Mode) *Vault {
	return &Vault{
		provider:    provider,
		mode:        mode,
		chains:      make(map[ids.ChainID]*chainEntry),
		blobs:       make(map[ids.BlobID][]byte),
		recordChain: make(map[ids.RecordID]ids.ChainID),
	}
}

// ContainsRecord reports whether recordID currently names a live
// (non-revoked) record.
func (v *Vault) ContainsRecord(recordID ids.RecordID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.poisonErr != nil {
		return false
	}
	chainID, ok := v.recordChain[recordID]
	if !ok {
		return false
	}
	return !v.chains[chainID].revoked
}

// Records returns every currently live record id, in no particular
// order beyond being stable for a given vault state.
func (v *Vault) Records() []ids.RecordID {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.poisonErr != nil {
		return nil
	}
	out := make([]ids.RecordID, 0, len(v.recordChain))
	for rid, cid := range v.recordChain {
		if !v.chains[cid].revoked {
			out = append(out, rid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// RecordInfo pairs a live record's id with the hint its most recent
// write carried, matching spec.md §4.6's "enumerates record id and
// hint pairs for valid records".
type RecordInfo struct {
	RecordID ids.RecordID
	Hint     [txn.RecordHintSize]byte
}

// RecordInfos is Records, but additionally decrypting each live
// record's current transaction to report the hint it was written
// with. Requires the vault key since hints live inside sealed
// transaction bytes.
func (v *Vault) RecordInfos(key []byte) ([]RecordInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPoisonedLocked(); err != nil {
		return nil, err
	}

	out := make([]RecordInfo, 0, len(v.recordChain))
	for rid, cid := range v.recordChain {
		entry := v.chains[cid]
		if entry.revoked {
			continue
		}
		latest, err := latestDataTx(v.provider, key, cid, entry)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			continue
		}
		out = append(out, RecordInfo{RecordID: rid, Hint: latest.RecordHint()})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].RecordID[:]) < string(out[j].RecordID[:])
	})
	return out, nil
}

// latestDataTx opens every transaction in entry and returns the Data
// transaction with the highest counter, or nil if the chain carries
// none (e.g. it is Init-only).
func latestDataTx(provider boxprovider.Provider, key []byte, chainID ids.ChainID, entry *chainEntry) (*txn.Transaction, error) {
	var latest *txn.Transaction
	var latestCounter uint64
	for _, sealed := range entry.txns {
		decoded, err := txn.Open(provider, key, chainID, sealed)
		if err != nil {
			return nil, err
		}
		if decoded.Tag() != txn.TagData {
			continue
		}
		if latest == nil || decoded.Counter() > latestCounter {
			latest = decoded
			latestCounter = decoded.Counter()
		}
	}
	return latest, nil
}

// Write seals payload as a new Data transaction for recordID. If
// recordID has no chain yet, or its chain has been revoked, a fresh
// chain is allocated (DESIGN.md resolution #3); otherwise the payload
// is appended to the existing chain as the new live version.
func (v *Vault) Write(key []byte, recordID ids.RecordID, payload []byte, hint [txn.RecordHintSize]byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPoisonedLocked(); err != nil {
		return err
	}

	chainID, exists := v.recordChain[recordID]
	entry, live := v.chains[chainID]
	needsFreshChain := !exists || !live || entry.revoked

	if needsFreshChain {
		newChainID, err := ids.RandomChainID()
		if err != nil {
			return err
		}
		initTx := txn.NewInit(newChainID, 0)
		sealedInit, err := txn.Seal(v.provider, key, initTx)
		if err != nil {
			return err
		}
		v.chains[newChainID] = &chainEntry{txns: [][]byte{sealedInit}}
		v.recordChain[recordID] = newChainID
		chainID = newChainID
	}

	entry = v.chains[chainID]
	counter := nextCounter(entry)

	blobID, err := ids.RandomBlobID()
	if err != nil {
		return err
	}
	sealedBlob, err := txn.SealBlob(v.provider, key, blobID, payload)
	if err != nil {
		return err
	}

	dataTx := txn.NewData(chainID, counter, recordID, blobID, uint32(len(payload)), hint)
	sealedData, err := txn.Seal(v.provider, key, dataTx)
	if err != nil {
		return err
	}

	v.blobs[blobID] = sealedBlob
	entry.txns = append(entry.txns, sealedData)
	return nil
}

// RevokeRecord appends a revocation transaction for recordID. Revoking
// an already-revoked or already-absent record is a no-op, matching
// spec.md's idempotent-revoke requirement.
func (v *Vault) RevokeRecord(key []byte, recordID ids.RecordID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPoisonedLocked(); err != nil {
		return err
	}

	chainID, exists := v.recordChain[recordID]
	if !exists {
		return nil
	}
	entry := v.chains[chainID]
	if entry.revoked {
		return nil
	}

	counter := nextCounter(entry)
	revokeTx := txn.NewRevocation(chainID, counter, recordID)
	sealed, err := txn.Seal(v.provider, key, revokeTx)
	if err != nil {
		return err
	}
	entry.txns = append(entry.txns, sealed)
	entry.revoked = true
	return nil
}

// GarbageCollect drops every revoked chain's transactions and the
// blobs they referenced, freeing both per the supplemented-features
// note in SPEC_FULL.md (the original only drops the log entries; this
// engine also reclaims the orphaned blob bytes). It returns the number
// of chains removed.
func (v *Vault) GarbageCollect(key []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPoisonedLocked(); err != nil {
		return 0, err
	}

	var toRemove []ids.ChainID
	for chainID, entry := range v.chains {
		if entry.revoked {
			toRemove = append(toRemove, chainID)
		}
	}

	for _, chainID := range toRemove {
		entry := v.chains[chainID]
		for _, sealed := range entry.txns {
			decoded, err := txn.Open(v.provider, key, chainID, sealed)
			if err != nil {
				continue
			}
			if decoded.Tag() == txn.TagData {
				delete(v.blobs, decoded.BlobID())
			}
		}
		delete(v.chains, chainID)
	}
	for recordID, chainID := range v.recordChain {
		if _, stillExists := v.chains[chainID]; !stillExists {
			delete(v.recordChain, recordID)
		}
	}
	return len(toRemove), nil
}

// GetGuard decrypts recordID's current payload into a freshly allocated
// guarded.Buffer and invokes fn with a borrow of it; the buffer is
// destroyed (and its memory zeroised) before GetGuard returns. Returns
// ErrRecordNotFound or ErrRecordRevoked if the record cannot be read.
func (v *Vault) GetGuard(key []byte, recordID ids.RecordID, fn func(plaintext []byte) error) error {
	v.mu.Lock()
	if err := v.checkPoisonedLocked(); err != nil {
		v.mu.Unlock()
		return err
	}
	payload, err := v.currentPayloadLocked(key, recordID)
	mode := v.mode
	v.mu.Unlock()
	if err != nil {
		return err
	}

	buf, err := guarded.AllocateFromMode(payload, mode)
	zero(payload)
	if err != nil {
		return err
	}
	defer buf.Destroy()

	return buf.View(fn)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ExecProc decrypts recordID's current payload, passes it to fn, and
// writes fn's returned bytes back as the record's new live version -
// an atomic read-transform-write cycle executed while the vault's lock
// is held. It implements spec.md's generic exec_proc primitive.
func (v *Vault) ExecProc(key []byte, recordID ids.RecordID, hint [txn.RecordHintSize]byte, fn func(plaintext []byte) ([]byte, error)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPoisonedLocked(); err != nil {
		return err
	}

	payload, err := v.currentPayloadLocked(key, recordID)
	if err != nil {
		return err
	}
	newPayload, err := fn(payload)
	if err != nil {
		return &ProcedureFailed{Err: err}
	}

	chainID := v.recordChain[recordID]
	entry := v.chains[chainID]
	counter := nextCounter(entry)

	blobID, err := ids.RandomBlobID()
	if err != nil {
		return err
	}
	sealedBlob, err := txn.SealBlob(v.provider, key, blobID, newPayload)
	if err != nil {
		return err
	}
	dataTx := txn.NewData(chainID, counter, recordID, blobID, uint32(len(newPayload)), hint)
	sealedData, err := txn.Seal(v.provider, key, dataTx)
	if err != nil {
		return err
	}
	v.blobs[blobID] = sealedBlob
	entry.txns = append(entry.txns, sealedData)
	return nil
}

func (v *Vault) currentPayloadLocked(key []byte, recordID ids.RecordID) ([]byte, error) {
	chainID, exists := v.recordChain[recordID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	entry := v.chains[chainID]
	if entry.revoked {
		return nil, ErrRecordRevoked
	}

	var latest *txn.Transaction
	var latestCounter uint64
	for _, sealed := range entry.txns {
		decoded, err := txn.Open(v.provider, key, chainID, sealed)
		if err != nil {
			return nil, err
		}
		if decoded.Tag() != txn.TagData {
			continue
		}
		if latest == nil || decoded.Counter() > latestCounter {
			latest = decoded
			latestCounter = decoded.Counter()
		}
	}
	if latest == nil {
		return nil, ErrRecordNotFound
	}

	sealedBlob, ok := v.blobs[latest.BlobID()]
	if !ok {
		return nil, ErrRecordNotFound
	}
	plaintext, err := txn.OpenBlob(v.provider, key, latest.BlobID(), sealedBlob)
	if err != nil {
		return nil, err
	}

	if uint32(len(plaintext)) != latest.PlaintextLen() {
		v.poisonErr = &VaultIntegrityError{
			RecordID: recordID,
			Reason:   fmt.Sprintf("declared plaintext length %d does not match decrypted length %d", latest.PlaintextLen(), len(plaintext)),
		}
		return nil, v.poisonErr
	}
	return plaintext, nil
}

func nextCounter(entry *chainEntry) uint64 {
	return uint64(len(entry.txns))
}

// ProcedureFailed wraps an error returned by an ExecProc callback.
type ProcedureFailed struct {
	Err error
}

func (e *ProcedureFailed) Error() string { return "vault: procedure failed: " + e.Err.Error() }
func (e *ProcedureFailed) Unwrap() error { return e.Err }

// SealedState is the vault's exportable-for-snapshot representation:
// every chain's sealed transactions plus every sealed blob.
type SealedState struct {
	Chains map[ids.ChainID][][]byte
	Blobs  map[ids.BlobID][]byte
}

// Export returns the vault's current sealed state for serialization.
func (v *Vault) Export() SealedState {
	v.mu.Lock()
	defer v.mu.Unlock()

	chains := make(map[ids.ChainID][][]byte, len(v.chains))
	for id, entry := range v.chains {
		cp := make([][]byte, len(entry.txns))
		copy(cp, entry.txns)
		chains[id] = cp
	}
	blobs := make(map[ids.BlobID][]byte, len(v.blobs))
	for id, b := range v.blobs {
		cp := make([]byte, len(b))
		copy(cp, b)
		blobs[id] = cp
	}
	return SealedState{Chains: chains, Blobs: blobs}
}

// Load rebuilds a vault's state from a SealedState, validating each
// chain independently: sorting its transactions by counter, requiring
// exactly one Init transaction at counter 0, and a contiguous
// ascending counter sequence. A chain failing validation is dropped
// and recorded as a *ChainIntegrityError in the returned error (via
// multierror), while every other chain still loads - matching
// spec.md §4.5's partial-failure tolerance for a corrupted vault.
func Load(provider boxprovider.Provider, key []byte, state SealedState) (*Vault, error) {
	return LoadMode(provider, key, state, guarded.ModeFull)
}

// LoadMode is Load with an explicit guarded.Mode for the rebuilt
// vault's GetGuard buffers.
func LoadMode(provider boxprovider.Provider, key []byte, state SealedState, mode guarded.Mode) (*Vault, error) {
	v := NewMode(provider, mode)
	var result *multierror.Error

	for chainID, sealedTxns := range state.Chains {
		type pair struct {
			sealed  []byte
			decoded *txn.Transaction
		}
		pairs := make([]pair, 0, len(sealedTxns))
		ok := true
		for _, sealed := range sealedTxns {
			t, err := txn.Open(provider, key, chainID, sealed)
			if err != nil {
				result = multierror.Append(result, &ChainIntegrityError{ChainID: chainID, Reason: "failed to open transaction: " + err.Error()})
				ok = false
				break
			}
			pairs = append(pairs, pair{sealed: sealed, decoded: t})
		}
		if !ok {
			continue
		}

		// records() sorts by counter before validating, grounded on
		// ChainRecord::new - see SPEC_FULL.md's supplemented features.
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].decoded.Counter() < pairs[j].decoded.Counter() })

		decoded := make([]*txn.Transaction, len(pairs))
		sortedSealed := make([][]byte, len(pairs))
		for i, p := range pairs {
			decoded[i] = p.decoded
			sortedSealed[i] = p.sealed
		}

		if err := validateChain(decoded); err != nil {
			result = multierror.Append(result, &ChainIntegrityError{ChainID: chainID, Reason: err.Error()})
			continue
		}

		entry := &chainEntry{txns: sortedSealed}
		var recordID ids.RecordID
		for _, t := range decoded {
			switch t.Tag() {
			case txn.TagData:
				recordID = t.RecordID()
			case txn.TagRevocation:
				entry.revoked = true
				recordID = t.RecordID()
			}
		}
		v.chains[chainID] = entry
		if recordID != (ids.RecordID{}) {
			// A revoked-then-rewritten record has an old revoked chain and
			// a new live one; the live chain wins regardless of map order.
			if prev, seen := v.recordChain[recordID]; !seen || v.chains[prev].revoked {
				v.recordChain[recordID] = chainID
			}
		}
	}

	for blobID, sealed := range state.Blobs {
		v.blobs[blobID] = sealed
	}

	if result != nil {
		return v, result.ErrorOrNil()
	}
	return v, nil
}

func validateChain(decoded []*txn.Transaction) error {
	if len(decoded) == 0 {
		return fmt.Errorf("empty chain")
	}
	if decoded[0].Tag() != txn.TagInit || decoded[0].Counter() != 0 {
		return fmt.Errorf("chain does not begin with an Init transaction at counter 0")
	}
	seenInit := 0
	for i, t := range decoded {
		if uint64(i) != t.Counter() {
			return fmt.Errorf("non-contiguous counter sequence at index %d (counter %d)", i, t.Counter())
		}
		if t.Tag() == txn.TagInit {
			seenInit++
		}
	}
	if seenInit != 1 {
		return fmt.Errorf("chain has %d Init transactions, want exactly 1", seenInit)
	}
	return nil
}
