package txn

import (
	"github.com/shadowglen/vaultengine/internal/boxprovider"
	"github.com/shadowglen/vaultengine/internal/ids"
)

// Seal encrypts a transaction's fixed bytes under key, using the
// transaction's chain id as associated data so a sealed transaction
// cannot be silently moved to a different chain. Mirrors
// Encrypt<SealedTransaction> for Transaction in
// _examples/original_source/engine/vault/src/types/transactions.rs,
// generalized from a trait impl to a plain function since Go has no
// analogous zero-sized-impl idiom.
func Seal(provider boxprovider.Provider, key []byte, t *Transaction) ([]byte, error) {
	chainID := t.ChainID()
	return provider.Seal(key, chainID.Bytes(), t.Bytes())
}

// Open decrypts a sealed transaction, given the chain id it is
// expected to belong to as associated data.
func Open(provider boxprovider.Provider, key []byte, chainID ids.ChainID, sealed []byte) (*Transaction, error) {
	plaintext, err := provider.Open(key, chainID.Bytes(), sealed)
	if err != nil {
		return nil, err
	}
	return Decode(plaintext)
}

// SealBlob encrypts a record's payload bytes under key, using the
// owning blob id as associated data.
func SealBlob(provider boxprovider.Provider, key []byte, blobID ids.BlobID, payload []byte) ([]byte, error) {
	return provider.Seal(key, blobID.Bytes(), payload)
}

// OpenBlob decrypts a sealed payload previously produced by SealBlob.
func OpenBlob(provider boxprovider.Provider, key []byte, blobID ids.BlobID, sealed []byte) ([]byte, error) {
	return provider.Open(key, blobID.Bytes(), sealed)
}
