package pipeline

import (
	"fmt"
	"os"
	"sort"
)

// Patient is one directory of the data folder. Index is its position in the
// sorted listing and is what index exclusions refer to.
type Patient struct {
	ID    string
	Index int
}

// ListPatients returns the patient directories of dir in name order.
func ListPatients(dir string) ([]Patient, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	patients := make([]Patient, len(names))
	for i, name := range names {
		patients[i] = Patient{ID: name, Index: i}
	}
	return patients, nil
}

// Limit keeps the first n patients; n <= 0 keeps all.
func Limit(patients []Patient, n int) []Patient {
	if n <= 0 || n >= len(patients) {
		return patients
	}
	return patients[:n]
}

// Exclusion drops patients by listing index and by id.
type Exclusion struct {
	Indexes []int
	IDs     []string
}

// Excluded reports whether p is dropped.
func (e Exclusion) Excluded(p Patient) bool {
	for _, i := range e.Indexes {
		if i == p.Index {
			return true
		}
	}
	for _, id := range e.IDs {
		if id == p.ID {
			return true
		}
	}
	return false
}

// Intersect returns the ids present in both mappings, sorted.
func Intersect[A, B any](a map[string]A, b map[string]B) []string {
	var ids []string
	for id := range a {
		if _, ok := b[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
