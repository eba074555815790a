package file

import "path/filepath"

// tmpSuffix is appended to the primary path to form the temporary snapshot path
const tmpSuffix = ".tmp"

// Config holds the location of the snapshot file
type Config struct {
	// Dir is the directory holding the snapshot (created on first save)
	Dir string
	// FileName is the primary snapshot file name within Dir
	FileName string
}

// DefaultConfig returns the default snapshot location
func DefaultConfig() Config {
	return Config{
		Dir:      "data",
		FileName: "data.json",
	}
}

// Path returns the primary snapshot path
func (c Config) Path() string {
	name := c.FileName
	if name == "" {
		name = DefaultConfig().FileName
	}
	return filepath.Join(c.Dir, name)
}

// TempPath returns the temporary snapshot path
func (c Config) TempPath() string {
	return c.Path() + tmpSuffix
}
