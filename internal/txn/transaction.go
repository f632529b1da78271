// Package txn implements the engine's transaction model: fixed-size,
// tag-dispatched records that form a per-chain append log (Init, Data,
// Revocation), sealed individually under the vault's key.
//
// Grounded on _examples/original_source/engine/vault/src/types/transactions.rs
// (the TransactionType enum and its tag values 1/2/10, the
// Init/Data/Revocation "typed view" pattern over an untyped byte
// buffer). The original uses `#[repr(packed)]` structs transmuted over
// a `Vec<u8>` to get zero-copy typed views; Go has no transmute, so
// this package instead defines one fixed byte layout and exposes typed
// accessor methods that read/write specific offsets within it.
// spec.md calls for a 112-byte fixed record rather than the original's
// 88 bytes (DESIGN.md's size-layout resolution), so the layout below
// is newly designed to fit the fields spec.md's Vault View text
// actually requires, not lifted byte-for-byte from the original.
package txn

import (
	"encoding/binary"
	"errors"

	"github.com/shadowglen/vaultengine/internal/ids"
)

// Tag identifies which of the three transaction kinds a record is.
type Tag byte

const (
	// TagData marks a record carrying a sealed payload.
	TagData Tag = 1
	// TagRevocation marks a record revoking an earlier data record.
	TagRevocation Tag = 2
	// TagInit marks the first record of every chain.
	TagInit Tag = 10
)

// Size is the fixed on-disk/in-memory width of every transaction.
const Size = 112

const (
	offTag          = 0
	offChainID      = 1
	offCounter      = offChainID + ids.Size // 25
	offRecordID     = offCounter + 8        // 33
	offPlaintextLen = offRecordID + ids.Size // 57
	offBlobID       = offPlaintextLen + 4    // 61
	offRecordHint   = offBlobID + ids.Size   // 85
	// offReserved = offRecordHint + ids.Size // 109, 3 bytes to Size (112)
)

// RecordHintSize is the width of the caller-supplied hint carried on
// Data transactions.
const RecordHintSize = ids.Size

// ErrInvalidLength is returned when decoding a byte slice that is not
// exactly Size bytes long.
var ErrInvalidLength = errors.New("txn: transaction must be exactly 112 bytes")

// ErrWrongTag names a transaction of an unexpected tag. The typed
// accessors below do not check the tag and never return it.
var ErrWrongTag = errors.New("txn: wrong transaction tag")

// Transaction is one fixed-size record. The zero value is not valid;
// construct one with NewInit, NewData, or NewRevocation.
type Transaction [Size]byte

// Tag reports which kind of transaction this is.
func (t *Transaction) Tag() Tag {
	return Tag(t[offTag])
}

// ChainID reports the chain this transaction belongs to.
func (t *Transaction) ChainID() ids.ChainID {
	var id ids.ChainID
	copy(id[:], t[offChainID:offChainID+ids.Size])
	return id
}

// Counter reports the transaction's position within its chain.
func (t *Transaction) Counter() uint64 {
	return binary.BigEndian.Uint64(t[offCounter : offCounter+8])
}

// RecordID reports the logical record this transaction concerns.
// Valid for Data and Revocation transactions only; Init transactions
// return the zero RecordID.
func (t *Transaction) RecordID() ids.RecordID {
	var id ids.RecordID
	copy(id[:], t[offRecordID:offRecordID+ids.Size])
	return id
}

// BlobID reports the sealed blob holding this transaction's payload.
// Valid for Data transactions only.
func (t *Transaction) BlobID() ids.BlobID {
	var id ids.BlobID
	copy(id[:], t[offBlobID:offBlobID+ids.Size])
	return id
}

// PlaintextLen reports the length of the unsealed payload a Data
// transaction's blob decrypts to.
func (t *Transaction) PlaintextLen() uint32 {
	return binary.BigEndian.Uint32(t[offPlaintextLen : offPlaintextLen+4])
}

// RecordHint returns the caller-supplied hint bytes on a Data
// transaction.
func (t *Transaction) RecordHint() [RecordHintSize]byte {
	var hint [RecordHintSize]byte
	copy(hint[:], t[offRecordHint:offRecordHint+RecordHintSize])
	return hint
}

// NewInit builds the first transaction of a new chain.
func NewInit(chainID ids.ChainID, counter uint64) *Transaction {
	var t Transaction
	t[offTag] = byte(TagInit)
	copy(t[offChainID:], chainID[:])
	binary.BigEndian.PutUint64(t[offCounter:], counter)
	return &t
}

// NewData builds a Data transaction.
func NewData(chainID ids.ChainID, counter uint64, recordID ids.RecordID, blobID ids.BlobID, plaintextLen uint32, hint [RecordHintSize]byte) *Transaction {
	var t Transaction
	t[offTag] = byte(TagData)
	copy(t[offChainID:], chainID[:])
	binary.BigEndian.PutUint64(t[offCounter:], counter)
	copy(t[offRecordID:], recordID[:])
	binary.BigEndian.PutUint32(t[offPlaintextLen:], plaintextLen)
	copy(t[offBlobID:], blobID[:])
	copy(t[offRecordHint:], hint[:])
	return &t
}

// NewRevocation builds a Revocation transaction for recordID.
func NewRevocation(chainID ids.ChainID, counter uint64, recordID ids.RecordID) *Transaction {
	var t Transaction
	t[offTag] = byte(TagRevocation)
	copy(t[offChainID:], chainID[:])
	binary.BigEndian.PutUint64(t[offCounter:], counter)
	copy(t[offRecordID:], recordID[:])
	return &t
}

// Bytes returns the transaction's fixed-size byte representation.
func (t *Transaction) Bytes() []byte {
	return t[:]
}

// Decode parses a Size-byte slice into a Transaction.
func Decode(b []byte) (*Transaction, error) {
	if len(b) != Size {
		return nil, ErrInvalidLength
	}
	var t Transaction
	copy(t[:], b)
	return &t, nil
}
