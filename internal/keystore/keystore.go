// Package keystore implements the Key & Key Store component: vault
// encryption keys held in guarded memory, sealed at rest under a
// single master key, and checked out for the duration of an operation
// under an exclusive-borrow discipline that gives callers a
// VaultBusy/LockContended signal instead of blocking indefinitely.
//
// Grounded on _examples/original_source/client_new/src/security/keystore.rs
// (the KeyStore struct: take_key/get_key/create_key/get_or_insert_key/
// rebuild_keystore/get_data/clear_keys) and
// _examples/original_source/snapshot/src/keys/keystore.rs. The
// original's Key<P> wraps Buffer<u8> purely for Ord/Eq/Hash so it can
// live in a Rust collection keyed by value; this package keys its map
// by VaultID instead, so a plain *guarded.Buffer already is the key
// type - no wrapper needed.
package keystore

import (
	"errors"
	"sync"
	"time"

	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/guarded"
	"github.com/shadowglen/vaultengine/internal/ids"
)

// ErrVaultBusy is returned by TakeKey/TakeOrCreate when another
// operation currently holds the vault's key.
var ErrVaultBusy = errors.New("keystore: vault key is busy")

// ErrVaultNotFound is returned by TakeKey when no key has been
// created for the given vault id.
var ErrVaultNotFound = errors.New("keystore: vault key not found")

// ErrLockContended is returned by the Spin variants of TakeKey/
// TakeOrCreate when a vault's key is still busy after the bounded
// spin window spec.md §5 specifies elapses.
var ErrLockContended = errors.New("keystore: lock contended")

const (
	spinAttempts = 1000
	spinInterval = time.Millisecond
)

// TakeOrCreateSpin is TakeOrCreate with spec.md §5's bounded-spin
// retry: up to 1000 attempts, 1ms apart, before giving up with
// ErrLockContended instead of the immediate ErrVaultBusy.
func (ks *KeyStore) TakeOrCreateSpin(id ids.VaultID) (*guarded.Buffer, error) {
	for attempt := 0; attempt < spinAttempts; attempt++ {
		key, err := ks.TakeOrCreate(id)
		if err != ErrVaultBusy {
			return key, err
		}
		time.Sleep(spinInterval)
	}
	return nil, ErrLockContended
}

// TakeKeySpin is TakeKey with the same bounded-spin retry as
// TakeOrCreateSpin.
func (ks *KeyStore) TakeKeySpin(id ids.VaultID) (*guarded.Buffer, error) {
	for attempt := 0; attempt < spinAttempts; attempt++ {
		key, err := ks.TakeKey(id)
		if err != ErrVaultBusy {
			return key, err
		}
		time.Sleep(spinInterval)
	}
	return nil, ErrLockContended
}

// KeyStore holds every vault key sealed under a single master key,
// plus the bookkeeping needed to hand a key out to exactly one caller
// at a time.
type KeyStore struct {
	mu        sync.Mutex
	provider  boxprovider.Provider
	mode      guarded.Mode
	masterKey *guarded.Buffer
	sealed    map[ids.VaultID][]byte
	taken     map[ids.VaultID]bool
}

// New builds a KeyStore from an existing master key, allocating every
// guarded buffer under guarded.ModeFull. Ownership of masterKey's bytes
// is copied into guarded memory; the caller's slice is not zeroised by
// this call.
func New(provider boxprovider.Provider, masterKey []byte) (*KeyStore, error) {
	return NewMode(provider, masterKey, guarded.ModeFull)
}

// NewMode is New with an explicit guarded.Mode, per spec.md §6's
// guarded_buffer_mode option.
func NewMode(provider boxprovider.Provider, masterKey []byte, mode guarded.Mode) (*KeyStore, error) {
	buf, err := guarded.AllocateFromMode(masterKey, mode)
	if err != nil {
		return nil, err
	}
	return &KeyStore{
		provider:  provider,
		mode:      mode,
		masterKey: buf,
		sealed:    make(map[ids.VaultID][]byte),
		taken:     make(map[ids.VaultID]bool),
	}, nil
}

// NewRandom builds a KeyStore with a freshly generated master key under
// guarded.ModeFull.
func NewRandom(provider boxprovider.Provider) (*KeyStore, error) {
	return NewRandomMode(provider, guarded.ModeFull)
}

// NewRandomMode is NewRandom with an explicit guarded.Mode.
func NewRandomMode(provider boxprovider.Provider, mode guarded.Mode) (*KeyStore, error) {
	raw := make([]byte, provider.KeyLength())
	if err := provider.RandomBytes(raw); err != nil {
		return nil, err
	}
	defer zero(raw)
	return NewMode(provider, raw, mode)
}

// Destroy releases the master key. The KeyStore must not be used
// afterward.
func (ks *KeyStore) Destroy() error {
	return ks.masterKey.Destroy()
}

// VaultExists reports whether a key has been created for id.
func (ks *KeyStore) VaultExists(id ids.VaultID) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	_, ok := ks.sealed[id]
	return ok
}

// CreateKey generates a fresh random key for id and seals it. If id is
// already present, the existing key is kept and CreateKey returns nil
// (use TakeOrCreate for the create-if-missing-then-borrow pattern vault
// writes need).
func (ks *KeyStore) CreateKey(id ids.VaultID) error {
	raw := make([]byte, ks.provider.KeyLength())
	if err := ks.provider.RandomBytes(raw); err != nil {
		return err
	}
	defer zero(raw)

	key, err := guarded.AllocateFromMode(raw, ks.mode)
	if err != nil {
		return err
	}
	defer key.Destroy()

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.sealed[id]; exists {
		return nil
	}
	return ks.sealLocked(id, key)
}

// TakeOrCreate checks out id's key for exclusive use, creating a fresh
// key first if none exists yet. It returns ErrVaultBusy if another
// caller currently holds the key. internal/database reaches it through
// TakeOrCreateSpin for every write, implementing DESIGN.md's resolution
// for serializing counter allocation per vault.
func (ks *KeyStore) TakeOrCreate(id ids.VaultID) (*guarded.Buffer, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.taken[id] {
		return nil, ErrVaultBusy
	}

	sealedKey, exists := ks.sealed[id]
	if !exists {
		raw := make([]byte, ks.provider.KeyLength())
		if err := ks.provider.RandomBytes(raw); err != nil {
			return nil, err
		}
		key, err := guarded.AllocateFromMode(raw, ks.mode)
		zero(raw)
		if err != nil {
			return nil, err
		}
		if err := ks.sealLocked(id, key); err != nil {
			key.Destroy()
			return nil, err
		}
		ks.taken[id] = true
		return key, nil
	}

	key, err := ks.openSealed(id, sealedKey)
	if err != nil {
		return nil, err
	}
	ks.taken[id] = true
	return key, nil
}

// TakeKey checks out an existing vault's key exclusively, returning
// ErrVaultNotFound if the vault has no key yet and ErrVaultBusy if
// another caller currently holds it.
func (ks *KeyStore) TakeKey(id ids.VaultID) (*guarded.Buffer, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.taken[id] {
		return nil, ErrVaultBusy
	}
	sealedKey, exists := ks.sealed[id]
	if !exists {
		return nil, ErrVaultNotFound
	}
	key, err := ks.openSealed(id, sealedKey)
	if err != nil {
		return nil, err
	}
	ks.taken[id] = true
	return key, nil
}

// Release reseals key under id and marks the vault no longer taken.
// The caller must not use key after calling Release; Release destroys
// it once it has been resealed.
func (ks *KeyStore) Release(id ids.VaultID, key *guarded.Buffer) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	defer key.Destroy()
	delete(ks.taken, id)
	return ks.sealLocked(id, key)
}

// InsertKey seals and stores key under id, overwriting any existing
// key for that vault id. Ownership of key passes to the KeyStore;
// the caller must not use it after this call returns. Used while
// restoring a client's vaults from a loaded snapshot.
func (ks *KeyStore) InsertKey(id ids.VaultID, key *guarded.Buffer) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	defer key.Destroy()
	return ks.sealLocked(id, key)
}

// GetKey returns a fresh clone decrypted from storage without taking
// an exclusive hold. Used for read-only operations (e.g. Records)
// that don't need the serialization TakeKey provides.
func (ks *KeyStore) GetKey(id ids.VaultID) (*guarded.Buffer, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	sealedKey, exists := ks.sealed[id]
	if !exists {
		return nil, ErrVaultNotFound
	}
	return ks.openSealed(id, sealedKey)
}

// SnapshotData decrypts every stored key for serialization into a
// snapshot. Each returned Buffer is independently owned by the caller.
func (ks *KeyStore) SnapshotData() (map[ids.VaultID]*guarded.Buffer, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	out := make(map[ids.VaultID]*guarded.Buffer, len(ks.sealed))
	for id, sealedKey := range ks.sealed {
		key, err := ks.openSealed(id, sealedKey)
		if err != nil {
			for _, k := range out {
				k.Destroy()
			}
			return nil, err
		}
		out[id] = key
	}
	return out, nil
}

// Rebuild replaces the key store's entire contents with keys, as when
// restoring state from a loaded snapshot. Ownership of every value in
// keys passes to the KeyStore; callers must not use them afterward.
func (ks *KeyStore) Rebuild(keys map[ids.VaultID]*guarded.Buffer) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	fresh := make(map[ids.VaultID][]byte, len(keys))
	for id, key := range keys {
		sealedKey, err := ks.seal(id, key)
		key.Destroy()
		if err != nil {
			return err
		}
		fresh[id] = sealedKey
	}
	ks.sealed = fresh
	ks.taken = make(map[ids.VaultID]bool)
	return nil
}

// ClearKeys discards every stored key.
func (ks *KeyStore) ClearKeys() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.sealed = make(map[ids.VaultID][]byte)
	ks.taken = make(map[ids.VaultID]bool)
}

func (ks *KeyStore) sealLocked(id ids.VaultID, key *guarded.Buffer) error {
	sealedKey, err := ks.seal(id, key)
	if err != nil {
		return err
	}
	ks.sealed[id] = sealedKey
	return nil
}

func (ks *KeyStore) seal(id ids.VaultID, key *guarded.Buffer) ([]byte, error) {
	var sealedKey []byte
	err := key.View(func(pt []byte) error {
		return ks.masterKey.View(func(mk []byte) error {
			var sealErr error
			sealedKey, sealErr = ks.provider.Seal(mk, id.Bytes(), pt)
			return sealErr
		})
	})
	return sealedKey, err
}

func (ks *KeyStore) openSealed(id ids.VaultID, sealedKey []byte) (*guarded.Buffer, error) {
	var key *guarded.Buffer
	err := ks.masterKey.View(func(mk []byte) error {
		pt, err := ks.provider.Open(mk, id.Bytes(), sealedKey)
		if err != nil {
			return err
		}
		defer zero(pt)
		key, err = guarded.AllocateFromMode(pt, ks.mode)
		return err
	})
	return key, err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
