// Package util holds small helpers shared across the engine packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idBytes = 16

// NewID returns a random identifier such as "ses_91f4...". The prefix
// names the entity kind, which keeps ids recognizable in logs,
// checkpoints, and client payloads. An empty prefix yields bare hex.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	_, _ = rand.Read(buf)
	if prefix == "" {
		return hex.EncodeToString(buf)
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
