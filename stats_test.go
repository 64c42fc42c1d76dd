/*
 *  stats_test.go
 *  mhcflow
 */

package mhcflow_test

import (
	"math"
	"testing"

	"github.com/popgenlab/mhcflow"
)

func TestPDistance(t *testing.T) {
	if got := mhcflow.PDistance("AAAA", "AAAT"); got != 0.25 {
		t.Fatalf("Expected p-distance 0.25, got %g", got)
	}
	if got := mhcflow.PDistance("ACGT", "ACGT"); got != 0 {
		t.Fatalf("Expected p-distance 0, got %g", got)
	}
}

func TestPDistanceMatrixSymmetric(t *testing.T) {
	table := &mhcflow.SeqTable{
		Samples: []string{"S1"},
		Seqs:    []string{"AAAA", "AATT", "TTTT"},
		Counts:  [][]int{{1}, {1}, {1}},
	}
	m := mhcflow.PDistanceMatrix(table)
	if m.At(0, 1) != 0.5 || m.At(1, 0) != 0.5 {
		t.Fatalf("Expected symmetric 0.5, got %g and %g", m.At(0, 1), m.At(1, 0))
	}
	if m.At(0, 2) != 1.0 {
		t.Fatalf("Expected 1.0, got %g", m.At(0, 2))
	}
	if m.At(1, 1) != 0 {
		t.Fatalf("Expected zero diagonal, got %g", m.At(1, 1))
	}
}

func TestShannonDiversity(t *testing.T) {
	if got := mhcflow.ShannonDiversity([]int{500, 500}); math.Abs(got-math.Ln2) > 1e-12 {
		t.Fatalf("Expected ln 2 for two equal variants, got %g", got)
	}
	if got := mhcflow.ShannonDiversity([]int{1000, 0, 0}); got != 0 {
		t.Fatalf("Expected 0 for a single variant, got %g", got)
	}
	if got := mhcflow.ShannonDiversity(nil); got != 0 {
		t.Fatalf("Expected 0 for an empty sample, got %g", got)
	}
}

func TestReverseComplement(t *testing.T) {
	if got := mhcflow.ReverseComplement("ACGT"); got != "ACGT" {
		t.Fatalf("Expected palindrome ACGT, got %s", got)
	}
	if got := mhcflow.ReverseComplement("AACCG"); got != "CGGTT" {
		t.Fatalf("Expected CGGTT, got %s", got)
	}
	if got := mhcflow.ReverseComplement("ANT"); got != "ANT" {
		t.Fatalf("Expected ANT, got %s", got)
	}
}

func TestExpectedErrors(t *testing.T) {
	// Four Q40 bases: 4 x 1e-4 expected errors
	got := mhcflow.ExpectedErrors([]byte("IIII"))
	if math.Abs(got-4e-4) > 1e-9 {
		t.Fatalf("Expected 4e-4, got %g", got)
	}
	// Q0 base: error probability 1
	got = mhcflow.ExpectedErrors([]byte("!"))
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("Expected 1, got %g", got)
	}
}
