/*
 *  chimera.go
 *  mhcflow
 */

package mhcflow

import (
	"fmt"
)

// commonPrefix returns the length of the shared prefix of a and b
func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// commonSuffix returns the length of the shared suffix of a and b
func commonSuffix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return n
}

// isBimeraOf reports whether child can be reconstructed as a left segment
// of one parent joined to a right segment of the other, with an exact
// crossover and no other differences
func isBimeraOf(child, left, right string) bool {
	if child == left || child == right {
		return false
	}
	p := commonPrefix(child, left)
	s := commonSuffix(child, right)
	if p == 0 || s == 0 {
		return false
	}
	return p+s >= len(child)
}

// bimeraInSample checks row i against all sufficiently-more-abundant
// parent pairs within sample column j
func bimeraInSample(t *SeqTable, i, j int) bool {
	childCount := t.Counts[i][j]
	var parents []int
	for p := range t.Seqs {
		if p == i {
			continue
		}
		if float64(t.Counts[p][j]) >= MinParentFold*float64(childCount) {
			parents = append(parents, p)
		}
	}
	for _, a := range parents {
		for _, b := range parents {
			if a == b {
				continue
			}
			if isBimeraOf(t.Seqs[i], t.Seqs[a], t.Seqs[b]) {
				return true
			}
		}
	}
	return false
}

// RemoveChimeras drops rows flagged as bimeric by the within-sample test in
// a consensus across the samples that contain them. The retained read-depth
// ratio is surfaced as a diagnostic; healthy amplicon runs keep 85-90%.
func RemoveChimeras(t *SeqTable, params Params) (*SeqTable, error) {
	if params.ChimeraMethod == "none" {
		log.Warning("Chimera removal disabled")
		return t.Clone(), nil
	}
	if params.ChimeraMethod != "consensus" {
		return nil, fmt.Errorf("unknown chimera method: %s", params.ChimeraMethod)
	}

	before := t.TotalDepth()
	var keep []int
	flagged := 0
	for i := range t.Seqs {
		containedIn, flaggedIn := 0, 0
		for j := range t.Samples {
			if t.Counts[i][j] == 0 {
				continue
			}
			containedIn++
			if bimeraInSample(t, i, j) {
				flaggedIn++
			}
		}
		if containedIn > 0 &&
			float64(flaggedIn) >= ChimeraConsensusFraction*float64(containedIn) {
			flagged++
			continue
		}
		keep = append(keep, i)
	}

	out := t.SubsetRows(keep)
	if out.NRows() == 0 {
		return nil, fmt.Errorf("empty table after chimera removal")
	}
	after := out.TotalDepth()
	log.Noticef("Chimera removal: flagged %d of %d variants, retained depth %s",
		flagged, t.NRows(), Percentage(after, before))
	if before > 0 && float64(after) < 0.85*float64(before) {
		log.Warningf("Chimera removal retained less than 85%% of read depth, inspect the run")
	}
	return out, nil
}
