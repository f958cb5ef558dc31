package engine

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const addressHashSize = 16

// AddressHasher derives the address_hash used for alt lookups. Raw addresses
// never leave the connection_addresses table.
type AddressHasher struct {
	key []byte
}

func NewAddressHasher(key string) (*AddressHasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("address hash key too long: %d bytes", len(key))
	}
	return &AddressHasher{key: []byte(key)}, nil
}

func (h *AddressHasher) Keyed() bool {
	return len(h.key) > 0
}

func (h *AddressHasher) Hash(address string) string {
	if address == "" {
		return ""
	}
	mac, err := blake2b.New(addressHashSize, h.key)
	if err != nil {
		// size and key length are checked in NewAddressHasher
		panic(err)
	}
	mac.Write([]byte(address))
	return hex.EncodeToString(mac.Sum(nil))
}
