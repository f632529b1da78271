// Copyright 2024 The vaultengine Authors
// SPDX-License-Identifier: Apache-2.0

package vaultengine

import (
	"errors"
	"fmt"

	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/guarded"
	"github.com/shadowglen/vaultengine/internal/keystore"
	"github.com/shadowglen/vaultengine/internal/snapshot"
	"github.com/shadowglen/vaultengine/internal/vault"
)

// Sentinel errors at the public boundary, one per lookup/retry/auth
// kind in spec §7 that doesn't need extra fields. Every Client and
// Engine method that can fail this way wraps the underlying internal
// error with one of these via %w, so callers only ever need to
// errors.Is against this package, never an internal one.
var (
	ErrRecordNotFound             = errors.New("vaultengine: record not found")
	ErrVaultNotFound              = errors.New("vaultengine: vault not found")
	ErrVaultBusy                  = errors.New("vaultengine: vault is busy")
	ErrLockContended              = errors.New("vaultengine: lock contended")
	ErrKeyWrapFailed              = errors.New("vaultengine: key wrap failed")
	ErrBoxOpenFailed              = errors.New("vaultengine: box open failed")
	ErrSnapshotCorrupted          = errors.New("vaultengine: snapshot corrupted")
	ErrSnapshotVersionUnsupported = errors.New("vaultengine: snapshot version unsupported")
	ErrSnapshotAuthFailed         = errors.New("vaultengine: snapshot authentication failed")
	ErrClientNotFound             = errors.New("vaultengine: client not found in snapshot")
)

// VaultIntegrityError, ChainIntegrityError, ProcedureFailed, and
// CanaryCorrupted carry structured context (which vault, which chain,
// the wrapped cause) that a plain sentinel can't, so the root package
// re-exports the internal types directly via alias rather than
// collapsing them: errors.As against these types keeps working
// unchanged across the package boundary.
type (
	VaultIntegrityError = vault.VaultIntegrityError
	ChainIntegrityError = vault.ChainIntegrityError
	ProcedureFailed     = vault.ProcedureFailed
	CanaryCorrupted     = guarded.CanaryError
)

// translateErr maps an internal-package error onto its root-boundary
// sentinel, per SPEC_FULL.md's ambient error-handling section ("every
// error kind... wrapped with %w at each layer"). Typed errors pass
// through unchanged since their type identity, not a sentinel, is
// already their contract.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var vie *vault.VaultIntegrityError
	var cie *vault.ChainIntegrityError
	var pf *vault.ProcedureFailed
	var canary *guarded.CanaryError
	if errors.As(err, &vie) || errors.As(err, &cie) || errors.As(err, &pf) || errors.As(err, &canary) {
		return err
	}

	switch {
	case errors.Is(err, vault.ErrRecordNotFound), errors.Is(err, vault.ErrRecordRevoked):
		return fmt.Errorf("%w: %v", ErrRecordNotFound, err)
	case errors.Is(err, keystore.ErrVaultNotFound):
		return fmt.Errorf("%w: %v", ErrVaultNotFound, err)
	case errors.Is(err, keystore.ErrVaultBusy):
		return fmt.Errorf("%w: %v", ErrVaultBusy, err)
	case errors.Is(err, keystore.ErrLockContended):
		return fmt.Errorf("%w: %v", ErrLockContended, err)
	case errors.Is(err, boxprovider.ErrOpenFailed):
		return fmt.Errorf("%w: %v", ErrBoxOpenFailed, err)
	case errors.Is(err, snapshot.ErrSnapshotCorrupted):
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	case errors.Is(err, snapshot.ErrSnapshotVersionUnsupported):
		return fmt.Errorf("%w: %v", ErrSnapshotVersionUnsupported, err)
	case errors.Is(err, snapshot.ErrSnapshotAuthFailed):
		return fmt.Errorf("%w: %v", ErrSnapshotAuthFailed, err)
	case errors.Is(err, snapshot.ErrClientNotFound):
		return fmt.Errorf("%w: %v", ErrClientNotFound, err)
	default:
		return err
	}
}
