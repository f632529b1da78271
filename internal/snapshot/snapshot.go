package snapshot

import (
	"os"

	"github.com/shadowglen/vaultengine/internal/database"
	"github.com/shadowglen/vaultengine/internal/guarded"
	"github.com/shadowglen/vaultengine/internal/ids"
	"github.com/shadowglen/vaultengine/internal/snapshot/lz4"
	"github.com/shadowglen/vaultengine/internal/store"
)

// ClientSource is what Write needs from one loaded client: its
// database view, its store, and the decrypted form of every vault key
// currently held in that client's key store (as produced by
// keystore.KeyStore.SnapshotData). Callers own the decrypted buffers
// and remain responsible for destroying them once Write returns.
type ClientSource struct {
	ClientPath []byte
	Database   *database.Database
	Store      *store.Store
	Keys       map[ids.VaultID]*guarded.Buffer
}

// Write builds a snapshot file at path containing every client in
// clients, sealed under masterKey.
func Write(path string, masterKey [32]byte, clients []ClientSource) error {
	states := make([]clientState, 0, len(clients))
	for _, c := range clients {
		cs, err := buildClientState(c.ClientPath, c.Database, c.Keys, c.Store)
		if err != nil {
			return err
		}
		states = append(states, cs)
	}

	payload, err := marshalClients(states)
	if err != nil {
		return err
	}
	compressed := lz4.Compress(payload)

	container, err := encode(masterKey, compressed)
	if err != nil {
		return err
	}
	return os.WriteFile(path, container, 0o600)
}

// ClientTarget pairs a client path with the Database to restore it
// into. Load takes these as separate arguments and does not use this
// type.
type ClientTarget struct {
	ClientPath []byte
	Database   *database.Database
}

// Load opens the snapshot file at path, decrypts it under masterKey,
// and restores the client named by clientPath into db (its key store
// and vaults are filled in by LoadVault), returning its restored Store.
// Other clients present in the file are left untouched, per spec.md
// §6's load_client contract.
func Load(path string, masterKey [32]byte, clientPath []byte, db *database.Database) (*store.Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	compressed, err := decode(masterKey, raw)
	if err != nil {
		return nil, err
	}
	payload, err := lz4.Decompress(compressed)
	if err != nil {
		return nil, ErrSnapshotCorrupted
	}

	clients, err := unmarshalClients(payload)
	if err != nil {
		return nil, err
	}

	for _, cs := range clients {
		if string(cs.ClientPath) != string(clientPath) {
			continue
		}
		return restoreClientState(cs, db)
	}
	return nil, ErrClientNotFound
}

// ClientPaths returns every client path present in the snapshot file
// at path, without decrypting any vault contents beyond what's needed
// to read the per-client envelope.
func ClientPaths(path string, masterKey [32]byte) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	compressed, err := decode(masterKey, raw)
	if err != nil {
		return nil, err
	}
	payload, err := lz4.Decompress(compressed)
	if err != nil {
		return nil, ErrSnapshotCorrupted
	}
	clients, err := unmarshalClients(payload)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(clients))
	for i, c := range clients {
		out[i] = c.ClientPath
	}
	return out, nil
}
