// Package ids implements the engine's 24-byte identifier types and
// their deterministic derivation from caller-supplied paths, plus
// Location resolution.
//
// Grounded on _examples/original_source/client/src/utils/ids.rs (the
// ID/ClientId/VaultId newtype-over-[24]byte pattern, HMAC-SHA512
// path derivation) and _examples/original_source/client_new/src/types/location.rs
// (Location's Generic/Counter variants and their resolve() logic,
// including the counter-path's Rust Vec<u8> Debug-format encoding,
// which this package reproduces byte-for-byte since spec.md §9
// requires it).
package ids

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Size is the fixed byte width of every identifier in this package.
const Size = 24

// ID is the shared 24-byte representation behind every identifier
// type below.
type ID [Size]byte

// Bytes returns a copy of the identifier's raw bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

func (id ID) String(label string) string {
	return fmt.Sprintf("%s(%s)", label, base64.StdEncoding.EncodeToString(id[:]))
}

// ClientID identifies one client's isolated keystore/database/store
// state within a snapshot.
type ClientID ID

func (id ClientID) String() string { return ID(id).String("Client") }
func (id ClientID) Bytes() []byte  { return ID(id).Bytes() }

// VaultID identifies one vault (a single key, one or more record
// chains) within a client.
type VaultID ID

func (id VaultID) String() string { return ID(id).String("Vault") }
func (id VaultID) Bytes() []byte  { return ID(id).Bytes() }

// RecordID identifies one logical record. It is stable across
// revoke-then-rewrite even though the record's underlying ChainID is
// re-randomized each time (see DESIGN.md's record id / chain id
// resolution).
type RecordID ID

func (id RecordID) String() string { return ID(id).String("Record") }
func (id RecordID) Bytes() []byte  { return ID(id).Bytes() }

// ChainID identifies the current live transaction chain backing a
// RecordID. Not present in the original source under this name; it is
// this engine's resolution of the record-id/chain-id ambiguity
// described in DESIGN.md.
type ChainID ID

func (id ChainID) String() string { return ID(id).String("Chain") }
func (id ChainID) Bytes() []byte  { return ID(id).Bytes() }

// BlobID identifies one sealed blob of record plaintext stored
// alongside its owning chain's transactions.
type BlobID ID

func (id BlobID) String() string { return ID(id).String("Blob") }
func (id BlobID) Bytes() []byte  { return ID(id).Bytes() }

// Random returns an ID drawn from crypto/rand.
func Random() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, err
	}
	return id, nil
}

// RandomVaultID, RandomClientID, RandomChainID and RandomBlobID are
// thin Random wrappers for their respective newtypes.
func RandomVaultID() (VaultID, error) {
	id, err := Random()
	return VaultID(id), err
}

func RandomClientID() (ClientID, error) {
	id, err := Random()
	return ClientID(id), err
}

func RandomChainID() (ChainID, error) {
	id, err := Random()
	return ChainID(id), err
}

func RandomBlobID() (BlobID, error) {
	id, err := Random()
	return BlobID(id), err
}

// deriveID reproduces LoadFromPath: HMAC_SHA512(data, path) truncated
// to the leading 24 bytes, with path as the HMAC key and data as the
// message (DESIGN.md's fixed convention for this otherwise
// unrecoverable argument order).
func deriveID(data, path []byte) ID {
	mac := hmac.New(sha512.New, path)
	mac.Write(data)
	sum := mac.Sum(nil)
	var id ID
	copy(id[:], sum[:Size])
	return id
}

// DeriveVaultID derives a VaultID from a vault path, using the path as
// both the HMAC message and key (mirrors derive_vault_id).
func DeriveVaultID(vaultPath []byte) VaultID {
	return VaultID(deriveID(vaultPath, vaultPath))
}

// DeriveClientID derives a ClientID from a client path, using the path
// as both the HMAC message and key (mirrors ClientId::load_from_path
// called with the same path for both arguments).
func DeriveClientID(clientPath []byte) ClientID {
	return ClientID(deriveID(clientPath, clientPath))
}

// DeriveRecordID derives a RecordID from a vault path and a record
// path (mirrors derive_record_id): the vault id's bytes are the HMAC
// message, the record path is the HMAC key.
func DeriveRecordID(vaultPath, recordPath []byte) RecordID {
	vid := DeriveVaultID(vaultPath)
	return RecordID(deriveID(vid.Bytes(), recordPath))
}

// DeriveRecordIDFromCounter derives a RecordID from a vault path and a
// counter index (mirrors derive_record_id_from_counter), reproducing
// Rust's "{:?}{}" format string over a Vec<u8> exactly: the vault
// path's Rust Debug representation (e.g. "[1, 2, 3]") followed by the
// literal "first_record" when counter is zero, or the counter's
// decimal digits otherwise. The same formatted string is used as both
// the HMAC message and key, mirroring derive_vault_id's self-keyed
// pattern.
func DeriveRecordIDFromCounter(vaultPath []byte, counter uint64) RecordID {
	var suffix string
	if counter == 0 {
		suffix = "first_record"
	} else {
		suffix = strconv.FormatUint(counter, 10)
	}
	path := []byte(rustDebugBytes(vaultPath) + suffix)
	return RecordID(deriveID(path, path))
}

// rustDebugBytes reproduces the output of Rust's derived
// `Debug for Vec<u8>`: "[b0, b1, ..., bn]" with ", " separators and no
// trailing separator, "[]" for the empty slice.
func rustDebugBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return sb.String()
}
