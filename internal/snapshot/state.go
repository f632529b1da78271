// Package snapshot implements the authenticated, versioned, compressed
// file format that serialises the full secret estate of one or more
// clients: each client's vault keys, its database view's sealed
// transaction chains and blobs, and its store.
//
// Grounded on spec.md §4.7 for the on-disk container layout and
// §4.7.1 for the compression format (internal/snapshot/lz4); the
// per-client payload itself has no surviving Rust source in
// original_source/ to mirror byte-for-byte, so it is this engine's own
// self-describing JSON encoding (DESIGN.md's open-question
// resolution), kept deliberately simple since the outer authenticated
// ciphertext is what spec.md requires to be tamper-evident, not the
// inner framing.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/shadowglen/vaultengine/internal/database"
	"github.com/shadowglen/vaultengine/internal/guarded"
	"github.com/shadowglen/vaultengine/internal/ids"
	"github.com/shadowglen/vaultengine/internal/store"
	"github.com/shadowglen/vaultengine/internal/vault"
)

// vaultState is one vault's exportable contents: its plaintext key
// (only ever present in memory for the duration of building or
// restoring a snapshot, never written out except inside the
// compressed-then-sealed payload) plus its chains and blobs.
type vaultState struct {
	VaultID []byte        `json:"vault_id"`
	Key     []byte        `json:"key"`
	Chains  []chainRecord `json:"chains"`
	Blobs   []blobRecord  `json:"blobs"`
}

type chainRecord struct {
	ChainID      []byte   `json:"chain_id"`
	Transactions [][]byte `json:"transactions"`
}

type blobRecord struct {
	BlobID []byte `json:"blob_id"`
	Data   []byte `json:"data"`
}

// clientState is one client's full persisted estate.
type clientState struct {
	ClientPath []byte         `json:"client_path"`
	Vaults     []vaultState   `json:"vaults"`
	Store      store.Snapshot `json:"store"`
}

// buildClientState assembles clientState from a database and a store,
// decrypting each vault key into the plaintext form the snapshot
// payload needs. The caller remains responsible for destroying db's
// keys; this function only reads them.
func buildClientState(clientPath []byte, db *database.Database, keys map[ids.VaultID]*guarded.Buffer, st *store.Store) (clientState, error) {
	exported := db.Export()

	cs := clientState{
		ClientPath: append([]byte(nil), clientPath...),
		Vaults:     make([]vaultState, 0, len(exported)),
	}
	if st != nil {
		cs.Store = st.Export()
	}

	for vid, sealed := range exported {
		key, ok := keys[vid]
		if !ok {
			return clientState{}, fmt.Errorf("snapshot: no key available for vault %s", vid.String())
		}
		vs := vaultState{VaultID: vid.Bytes()}
		if err := key.View(func(pt []byte) error {
			vs.Key = append([]byte(nil), pt...)
			return nil
		}); err != nil {
			return clientState{}, err
		}

		vs.Chains = make([]chainRecord, 0, len(sealed.Chains))
		for cid, txns := range sealed.Chains {
			vs.Chains = append(vs.Chains, chainRecord{ChainID: cid.Bytes(), Transactions: txns})
		}
		vs.Blobs = make([]blobRecord, 0, len(sealed.Blobs))
		for bid, data := range sealed.Blobs {
			vs.Blobs = append(vs.Blobs, blobRecord{BlobID: bid.Bytes(), Data: data})
		}
		cs.Vaults = append(cs.Vaults, vs)
	}
	return cs, nil
}

// restoreClientState rebuilds a database and a store from a decoded
// clientState. Ownership of each vault key passes to db; ordinary
// guarded.AllocateFrom-sourced buffers are destroyed by the database's
// key store once loaded.
func restoreClientState(cs clientState, db *database.Database) (*store.Store, error) {
	for _, vs := range cs.Vaults {
		vid, err := idFromBytes[ids.VaultID](vs.VaultID)
		if err != nil {
			return nil, err
		}

		key, err := guarded.AllocateFrom(vs.Key)
		if err != nil {
			return nil, err
		}

		state := vault.SealedState{
			Chains: make(map[ids.ChainID][][]byte, len(vs.Chains)),
			Blobs:  make(map[ids.BlobID][]byte, len(vs.Blobs)),
		}
		for _, cr := range vs.Chains {
			cid, err := idFromBytes[ids.ChainID](cr.ChainID)
			if err != nil {
				key.Destroy()
				return nil, err
			}
			state.Chains[cid] = cr.Transactions
		}
		for _, br := range vs.Blobs {
			bid, err := idFromBytes[ids.BlobID](br.BlobID)
			if err != nil {
				key.Destroy()
				return nil, err
			}
			state.Blobs[bid] = br.Data
		}

		if err := db.LoadVault(vid, key, state); err != nil {
			return nil, err
		}
	}
	return store.Load(cs.Store), nil
}

func idFromBytes[T ~[ids.Size]byte](b []byte) (T, error) {
	var out T
	if len(b) != ids.Size {
		return out, fmt.Errorf("snapshot: identifier has wrong length %d, want %d", len(b), ids.Size)
	}
	copy(out[:], b)
	return out, nil
}

func marshalClients(clients []clientState) ([]byte, error) {
	return json.Marshal(clients)
}

func unmarshalClients(data []byte) ([]clientState, error) {
	var clients []clientState
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	return clients, nil
}
