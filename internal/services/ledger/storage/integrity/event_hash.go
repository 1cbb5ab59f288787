package integrity

import (
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

// EventHash computes the content hash for a single event.
func EventHash(evt event.Event) (string, error) {
	return event.EventHash(evt)
}

// ChainHash computes the hash that links an event to its predecessor.
func ChainHash(evt event.Event, prevHash string) (string, error) {
	return event.ChainHash(evt, prevHash)
}

// Seal fills the hash, chain, and signature fields of evt, which must
// already carry its sequence number.
func (k *Keyring) Seal(evt event.Event, prevChainHash string) (event.Event, error) {
	hash, err := EventHash(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt.Hash = hash
	chainHash, err := ChainHash(evt, prevChainHash)
	if err != nil {
		return event.Event{}, err
	}
	signature, keyID, err := k.SignChainHash(evt.AggregateID, chainHash)
	if err != nil {
		return event.Event{}, err
	}
	evt.PrevHash = prevChainHash
	evt.ChainHash = chainHash
	evt.Signature = signature
	evt.SignatureKeyID = keyID
	return evt, nil
}
