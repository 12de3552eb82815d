// Package config loads an optional .rrvmrc.toml file carrying defaults for
// flags the CLI driver (cmd/rrvm) would otherwise require on every
// invocation: word width, default backend, default trace setting, IR dump
// path. A file value is applied only where the matching flag was not set
// on the command line, so command-line flags still override it, mirroring the teacher's layered-defaults shape (main.go's
// package-level flag.Bool paired with a compile-time default) generalised
// onto a real config-file format, since the pack already depends on
// pelletier/go-toml at production scale.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
)

// File is the shape of .rrvmrc.toml. Every field is optional; a zero value
// means "let the CLI flag default win".
type File struct {
	Backend  string `toml:"backend"`
	Trace    bool   `toml:"trace"`
	WordBits int    `toml:"word_bits"`
	DumpIR   string `toml:"dump_ir"`
}

// Load reads and parses path. A missing file is not an error — it returns a
// zero-value File so callers can unconditionally layer CLI flags on top.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, err
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, err
	}
	return f, nil
}
