/*
 *  merge_test.go
 *  mhcflow
 */

package mhcflow_test

import (
	"testing"

	"github.com/popgenlab/mhcflow"
)

// amplicon is a 30 bp non-repetitive reference used by the merge tests
const amplicon = "ACGTTGCAAGGCTTAACCGGATCCATGGCA"

func TestMergePairExactOverlap(t *testing.T) {
	fwd := amplicon[:22]
	rev := mhcflow.ReverseComplement(amplicon[8:])

	merged, ok := mhcflow.MergePair(fwd, rev, mhcflow.DefaultParams())
	if !ok {
		t.Fatal("Expected successful merge")
	}
	if merged != amplicon {
		t.Fatalf("Expected %s, got %s", amplicon, merged)
	}
}

func TestMergePairRejectsShortOverlap(t *testing.T) {
	fwd := amplicon[:18]
	rev := mhcflow.ReverseComplement(amplicon[12:])
	// Overlap is only 6 bp, below the default minimum of 12
	if _, ok := mhcflow.MergePair(fwd, rev, mhcflow.DefaultParams()); ok {
		t.Fatal("Expected merge rejection for short overlap")
	}
}

func TestMergePairMismatchPolicy(t *testing.T) {
	fwd := amplicon[:22]
	tail := []byte(amplicon[8:])
	tail[4] = 'A' // inside the overlap, original is 'T'
	rev := mhcflow.ReverseComplement(string(tail))

	params := mhcflow.DefaultParams()
	if _, ok := mhcflow.MergePair(fwd, rev, params); ok {
		t.Fatal("Expected rejection with zero mismatches allowed")
	}

	params.MaxMergeDiffs = 1
	merged, ok := mhcflow.MergePair(fwd, rev, params)
	if !ok {
		t.Fatal("Expected merge with one mismatch allowed")
	}
	// Forward read takes precedence inside the overlap
	if merged != amplicon {
		t.Fatalf("Expected forward precedence to restore %s, got %s", amplicon, merged)
	}
}

func TestMergeSampleAbundance(t *testing.T) {
	fwd := amplicon[:22]
	rev := mhcflow.ReverseComplement(amplicon[8:])

	fCounts := map[string]int{fwd: 1000}
	rCounts := map[string]int{rev: 800}
	merged := mhcflow.MergeSample(fCounts, rCounts, mhcflow.DefaultParams())

	if len(merged) != 1 {
		t.Fatalf("Expected 1 merged variant, got %d", len(merged))
	}
	if merged[amplicon] != 800 {
		t.Fatalf("Expected merged abundance 800, got %d", merged[amplicon])
	}
}

func TestMergeSampleDropsUnmergeable(t *testing.T) {
	fwd := amplicon[:22]
	rev := mhcflow.ReverseComplement(amplicon[8:])
	stray := "GGGGGGGGGGGGGGGGGGGGGG"

	fCounts := map[string]int{fwd: 1000, stray: 500}
	rCounts := map[string]int{rev: 900}
	merged := mhcflow.MergeSample(fCounts, rCounts, mhcflow.DefaultParams())

	if len(merged) != 1 {
		t.Fatalf("Expected 1 merged variant, got %d", len(merged))
	}
	if merged[amplicon] != 900 {
		t.Fatalf("Expected merged abundance 900, got %d", merged[amplicon])
	}
}
