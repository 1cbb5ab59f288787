package integrity

import (
	"fmt"
	"os"
	"strings"
)

const (
	envHMACKeys  = "LEDGER_EVENT_HMAC_KEYS"
	envHMACKey   = "LEDGER_EVENT_HMAC_KEY"
	envHMACKeyID = "LEDGER_EVENT_HMAC_KEY_ID"
	defaultKeyID = "v1"
)

// KeyringFromEnv loads the HMAC keyring from the environment. Either a
// single key (LEDGER_EVENT_HMAC_KEY) or a rotation list of id=key pairs
// (LEDGER_EVENT_HMAC_KEYS) is accepted; LEDGER_EVENT_HMAC_KEY_ID names the
// signing key.
func KeyringFromEnv() (*Keyring, error) {
	keyID := strings.TrimSpace(os.Getenv(envHMACKeyID))
	if keyID == "" {
		keyID = defaultKeyID
	}
	keySpec := strings.TrimSpace(os.Getenv(envHMACKeys))
	if keySpec == "" {
		raw := strings.TrimSpace(os.Getenv(envHMACKey))
		if raw == "" {
			return nil, fmt.Errorf("%s is required", envHMACKey)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(keySpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry", envHMACKeys)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
