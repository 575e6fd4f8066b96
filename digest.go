package changedata

import (
	"encoding/base64"
	"fmt"

	"github.com/minio/blake2b-simd"
)

// Digest returns a short content hash of the full history, usable to
// spot drift between two maps without comparing them record by record.
// Two maps have equal digests when Encode renders them identically, so
// the digest covers values, timestamps, tombstones, and tags, but not
// lookup configuration. The default JSON codec encodes deterministically;
// a custom Marshal must do the same for digests to be comparable.
func (m *Map[K, V]) Digest() (string, error) {
	encoded, err := m.Encode()
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	sum := blake2b.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
