// Package karat holds the static karat → purity table.
package karat

import (
	"fmt"
	"slices"
)

// Info describes one karat grade.
type Info struct {
	Karat          int     `json:"karat"`
	Name           string  `json:"name"`
	PurityLabel    string  `json:"purity"`
	PurityFraction float64 `json:"purityFraction"`
}

// Standard is the tracked set used when configuration does not override it.
var Standard = []int{10, 14, 16, 18, 20, 22, 24}

var known = map[int]Info{
	24: {Karat: 24, Name: "Emas 24 Karat", PurityLabel: "99.9% Murni", PurityFraction: 0.999},
	22: {Karat: 22, Name: "Emas 22 Karat", PurityLabel: "91.6% Murni", PurityFraction: 0.916},
	20: {Karat: 20, Name: "Emas 20 Karat", PurityLabel: "83.3% Murni", PurityFraction: 0.833},
	18: {Karat: 18, Name: "Emas 18 Karat", PurityLabel: "75% Murni", PurityFraction: 0.750},
	16: {Karat: 16, Name: "Emas 16 Karat", PurityLabel: "66.7% Murni", PurityFraction: 0.667},
	14: {Karat: 14, Name: "Emas 14 Karat", PurityLabel: "58.5% Murni", PurityFraction: 0.585},
	10: {Karat: 10, Name: "Emas 10 Karat", PurityLabel: "41.7% Murni", PurityFraction: 0.417},
}

// Valid reports whether k is a meaningful karat value.
func Valid(k int) bool { return k >= 1 && k <= 24 }

// Lookup returns the info for k. Karats outside the built-in list get a generic entry
// with a k/24 purity fraction.
func Lookup(k int) Info {
	if info, ok := known[k]; ok {
		return info
	}
	return Info{
		Karat:          k,
		Name:           fmt.Sprintf("Emas %d Karat", k),
		PurityLabel:    fmt.Sprintf("%dK", k),
		PurityFraction: float64(k) / 24,
	}
}

// Table is an immutable tracked karat set with its infos.
type Table struct {
	tracked []int
	infos   map[int]Info
}

// NewTable builds a table for the given karats. Duplicates are removed and the result is
// kept in descending karat order.
func NewTable(karats []int) (Table, error) {
	if len(karats) == 0 {
		return Table{}, fmt.Errorf("karat table: empty karat set")
	}
	infos := make(map[int]Info, len(karats))
	tracked := make([]int, 0, len(karats))
	for _, k := range karats {
		if !Valid(k) {
			return Table{}, fmt.Errorf("karat table: invalid karat %d", k)
		}
		if _, dup := infos[k]; dup {
			continue
		}
		infos[k] = Lookup(k)
		tracked = append(tracked, k)
	}
	slices.Sort(tracked)
	slices.Reverse(tracked)
	return Table{tracked: tracked, infos: infos}, nil
}

// MustTable is NewTable for static karat sets.
func MustTable(karats []int) Table {
	t, err := NewTable(karats)
	if err != nil {
		panic(err)
	}
	return t
}

// Tracked returns the tracked karats, highest first.
func (t Table) Tracked() []int { return slices.Clone(t.tracked) }

// Tracks reports whether k is in the table.
func (t Table) Tracks(k int) bool {
	_, ok := t.infos[k]
	return ok
}

// Info returns the info for a tracked karat, or a generic one for anything else.
func (t Table) Info(k int) Info {
	if info, ok := t.infos[k]; ok {
		return info
	}
	return Lookup(k)
}

// Ratio is the purity of k relative to 24K.
func Ratio(k int) float64 {
	return Lookup(k).PurityFraction / Lookup(24).PurityFraction
}
