package model

import "iconcal/internal/asset"

// Entry is one asset file that parsed and resolved for a given year.
type Entry struct {
	// File is the path of the asset on disk.
	File string

	// Name is the label from the filename, e.g. "April Fools".
	Name string

	ID    asset.Identifier
	Year  int
	Range asset.Range
}

// Icon is what gets applied for a day: an event's asset or the default.
type Icon struct {
	Name    string
	Path    string
	Default bool
}

// IconFor builds the Icon of an entry.
func IconFor(e Entry) Icon {
	return Icon{Name: e.Name, Path: e.File}
}
