/*
 *  chimera_test.go
 *  mhcflow
 */

package mhcflow_test

import (
	"strings"
	"testing"

	"github.com/popgenlab/mhcflow"
)

func TestRemoveChimerasFlagsBimera(t *testing.T) {
	parentA := strings.Repeat("A", 12)
	parentB := strings.Repeat("C", 12)
	bimera := strings.Repeat("A", 6) + strings.Repeat("C", 6)
	honest := strings.Repeat("G", 12)

	table := &mhcflow.SeqTable{
		Samples: []string{"S1", "S2"},
		Seqs:    []string{parentA, parentB, bimera, honest},
		Counts: [][]int{
			{1000, 900},
			{800, 700},
			{100, 90},
			{400, 300},
		},
	}
	out, err := mhcflow.RemoveChimeras(table, mhcflow.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if out.NRows() != 3 {
		t.Fatalf("Expected 3 rows after chimera removal, got %d", out.NRows())
	}
	for _, s := range out.Seqs {
		if s == bimera {
			t.Fatal("Bimera survived consensus removal")
		}
	}
}

func TestRemoveChimerasRequiresAbundantParents(t *testing.T) {
	parentA := strings.Repeat("A", 12)
	parentB := strings.Repeat("C", 12)
	// The would-be bimera is more abundant than both putative parents, so
	// neither qualifies as a parent and the row must be kept
	child := strings.Repeat("A", 6) + strings.Repeat("C", 6)

	table := &mhcflow.SeqTable{
		Samples: []string{"S1"},
		Seqs:    []string{child, parentA, parentB},
		Counts: [][]int{
			{5000},
			{1000},
			{800},
		},
	}
	out, err := mhcflow.RemoveChimeras(table, mhcflow.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if out.NRows() != 3 {
		t.Fatalf("Expected all 3 rows kept, got %d", out.NRows())
	}
}

func TestRemoveChimerasConsensusAcrossSamples(t *testing.T) {
	parentA := strings.Repeat("A", 12)
	parentB := strings.Repeat("C", 12)
	bimera := strings.Repeat("A", 6) + strings.Repeat("C", 6)

	// The bimera is flagged in only one of its two containing samples: in
	// S2 parentB is absent, so the two-parent test cannot fire there
	table := &mhcflow.SeqTable{
		Samples: []string{"S1", "S2"},
		Seqs:    []string{parentA, parentB, bimera},
		Counts: [][]int{
			{1000, 900},
			{800, 0},
			{100, 90},
		},
	}
	out, err := mhcflow.RemoveChimeras(table, mhcflow.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if out.NRows() != 3 {
		t.Fatalf("Expected 3 rows (consensus not reached), got %d", out.NRows())
	}
}

func TestRemoveChimerasDisabled(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1"},
		Seqs:    []string{strings.Repeat("A", 12)},
		Counts:  [][]int{{100}},
	}
	params := mhcflow.DefaultParams()
	params.ChimeraMethod = "none"
	out, err := mhcflow.RemoveChimeras(table, params)
	if err != nil {
		t.Fatal(err)
	}
	if out.NRows() != 1 {
		t.Fatalf("Expected untouched table, got %d rows", out.NRows())
	}
}
