package config

import (
	"crypto/sha256"
	"encoding/hex"

	"gopkg.in/yaml.v3"
)

// ConfigHashLen is the number of hex characters used for the config hash (first 16 of SHA256).
const ConfigHashLen = 16

// HashFromBytes returns the first ConfigHashLen hex characters of the SHA256
// of data.
func HashFromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:ConfigHashLen]
}

// Fingerprint hashes the effective settings with credentials blanked, so
// runs recorded under different settings can be told apart in the history.
func (c *Config) Fingerprint() string {
	clone := *c
	clone.Download.ClientID = ""
	clone.Download.ClientSecret = ""
	data, err := yaml.Marshal(&clone)
	if err != nil {
		return ""
	}
	return HashFromBytes(data)
}
