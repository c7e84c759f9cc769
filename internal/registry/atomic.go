package registry

import "github.com/google/renameio/v2"

// writeAtomic replaces the file at path via write-to-temp + rename so a
// crash mid-write never corrupts the previous state.
func writeAtomic(path string, payload []byte) error {
	return renameio.WriteFile(path, payload, 0o644)
}
