// Package vault implements the Vault View: one vault's transaction
// chains, their sealed blobs, and the record-id/chain-id index that
// lets a caller address a logical record that survives revoke-then-
// rewrite. See DESIGN.md's record-id/chain-id resolution for why the
// two ids are distinct fields rather than the same value.
//
// Grounded on _examples/original_source/engine/vault/src/nvault.rs
// (per-chain Entry: data/revoke/blob, garbage_collect dropping revoked
// entries) and _examples/original_source/engine/vault/src/vault/record.rs
// (ChainRecord: sorting by counter, validating exactly one Init and a
// contiguous ascending counter sequence before a chain is trusted).
package vault

import (
	"fmt"

	"github.com/shadowglen/vaultengine/internal/ids"
)

// ErrRecordNotFound is returned when a record id has no live chain.
var ErrRecordNotFound = fmt.Errorf("vault: record not found")

// ErrRecordRevoked is returned when an operation needs to read a
// record whose chain carries a revocation transaction.
var ErrRecordRevoked = fmt.Errorf("vault: record has been revoked")

// ChainIntegrityError reports that one chain failed validation while
// loading a vault's sealed state. Per spec.md §4.5, a chain failing
// validation is rejected but does not prevent the rest of the vault's
// chains from loading.
type ChainIntegrityError struct {
	ChainID ids.ChainID
	Reason  string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("vault: chain %s failed integrity check: %s", e.ChainID, e.Reason)
}

// VaultIntegrityError reports a runtime invariant violation discovered
// after a blob was successfully opened: its declared plaintext length
// doesn't match what was actually sealed under it. Per spec.md §4.5,
// this is fatal for the vault - the vault is poisoned and every
// subsequent operation against it fails with this same error until the
// vault is reloaded from a fresh snapshot.
type VaultIntegrityError struct {
	RecordID ids.RecordID
	Reason   string
}

func (e *VaultIntegrityError) Error() string {
	return fmt.Sprintf("vault: record %s failed integrity check: %s", e.RecordID, e.Reason)
}
