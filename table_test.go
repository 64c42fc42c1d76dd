/*
 *  table_test.go
 *  mhcflow
 */

package mhcflow_test

import (
	"path/filepath"
	"testing"

	"github.com/popgenlab/mhcflow"
)

func TestNewSeqTableUnionAndZeroFill(t *testing.T) {
	samples := []string{"S1", "S2"}
	counts := map[string]map[string]int{
		"S1": {"AAAA": 10, "CCCC": 5},
		"S2": {"CCCC": 7},
	}
	table := mhcflow.NewSeqTable(samples, counts)

	if table.NRows() != 2 {
		t.Fatalf("Expected 2 rows, got %d", table.NRows())
	}
	if table.NSamples() != 2 {
		t.Fatalf("Expected 2 samples, got %d", table.NSamples())
	}
	// CCCC has the larger total (12) and must sort first
	if table.Seqs[0] != "CCCC" || table.Seqs[1] != "AAAA" {
		t.Fatalf("Unexpected row order: %v", table.Seqs)
	}
	// AAAA absent from S2 must be an explicit zero
	if table.Counts[1][1] != 0 {
		t.Fatalf("Expected zero-filled cell, got %d", table.Counts[1][1])
	}
	if table.TotalDepth() != 22 {
		t.Fatalf("Expected depth 22, got %d", table.TotalDepth())
	}
}

func TestPrevalenceCountsDataColumnsOnly(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1", "S2", "S3"},
		Seqs:    []string{"AAAA", "CCCC"},
		Counts: [][]int{
			{100, 0, 50},
			{0, 0, 7},
		},
	}
	if got := table.Prevalence(0); got != 2 {
		t.Fatalf("Expected prevalence 2, got %d", got)
	}
	if got := table.Prevalence(1); got != 1 {
		t.Fatalf("Expected prevalence 1, got %d", got)
	}
	// Recomputation on an unchanged table is idempotent
	for i := 0; i < 3; i++ {
		if got := table.Prevalence(0); got != 2 {
			t.Fatalf("Prevalence changed on recomputation: %d", got)
		}
		if got := table.TotalAbundance(0); got != 150 {
			t.Fatalf("TotalAbundance changed on recomputation: %d", got)
		}
	}
}

func TestVariantCounts(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1", "S2"},
		Seqs:    []string{"AAAA", "CCCC", "GGGG"},
		Counts: [][]int{
			{100, 200},
			{0, 300},
			{50, 0},
		},
	}
	counts := table.VariantCounts()
	if counts[0] != 2 || counts[1] != 2 {
		t.Fatalf("Unexpected variant counts: %v", counts)
	}
}

func TestSeqTableTSVRoundtrip(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1", "S2", "S3"},
		Seqs:    []string{"ACGTACGT", "TGCATGCA"},
		Counts: [][]int{
			{120, 0, 88},
			{0, 45, 0},
		},
	}
	path := filepath.Join(t.TempDir(), "table.tsv")
	if err := table.WriteTSV(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := mhcflow.ReadSeqTableTSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.NRows() != 2 || loaded.NSamples() != 3 {
		t.Fatalf("Expected 2x3 table, got %dx%d", loaded.NRows(), loaded.NSamples())
	}
	// The serialized derived columns must not survive as samples
	for _, sample := range loaded.Samples {
		if sample == "Prevalence" || sample == "TotalAbundance" {
			t.Fatalf("Derived column leaked into samples: %v", loaded.Samples)
		}
	}
	if loaded.Counts[0][2] != 88 || loaded.Counts[1][1] != 45 {
		t.Fatalf("Counts corrupted in roundtrip: %v", loaded.Counts)
	}
}

func TestCloneIsNotAliased(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1"},
		Seqs:    []string{"AAAA"},
		Counts:  [][]int{{10}},
	}
	clone := table.Clone()
	clone.Counts[0][0] = 99
	if table.Counts[0][0] != 10 {
		t.Fatalf("Clone aliased the counts matrix")
	}
}
