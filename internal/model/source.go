package model

import "strings"

// SourceID identifies where a candidate value came from. The set is open:
// unrecognized ids are carried through and receive a low default trust weight.
type SourceID string

const (
	SourceRegistry   SourceID = "registry"
	SourceStateBoard SourceID = "state_board"
	SourceHospital   SourceID = "hospital"
	SourceMaps       SourceID = "maps"
	SourceOriginal   SourceID = "original"
)

// ParseSourceID normalizes s. "npi" is accepted as an alias of registry.
func ParseSourceID(s string) SourceID {
	id := SourceID(strings.ToLower(strings.TrimSpace(s)))
	if id == "npi" {
		return SourceRegistry
	}
	return id
}

// Known reports whether s is one of the built-in sources.
func (s SourceID) Known() bool {
	switch s {
	case SourceRegistry, SourceStateBoard, SourceHospital, SourceMaps, SourceOriginal:
		return true
	}
	return false
}
