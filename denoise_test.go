/*
 *  denoise_test.go
 *  mhcflow
 */

package mhcflow_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/popgenlab/mhcflow"
)

func qualString(n int, q byte) []byte {
	return []byte(strings.Repeat(string(q), n))
}

func TestClusterAbsorbsSequencingErrors(t *testing.T) {
	center := "ACGTACGTACGTACGTACGT"
	oneOff := "ACGTACGTACGTACGTACGA" // one substitution
	qual := qualString(len(center), 'I') // Q40

	uniques := []*mhcflow.UniqueSeq{
		mhcflow.NewUniqueSeq(center, 1000, qual),
		mhcflow.NewUniqueSeq(oneOff, 3, qual),
	}
	clusters := mhcflow.Cluster(uniques, mhcflow.NewPhredModel())
	if len(clusters) != 1 {
		t.Fatalf("Expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Abundance != 1003 {
		t.Fatalf("Expected abundance 1003, got %d", clusters[0].Abundance)
	}
	if clusters[0].Center.Seq != center {
		t.Fatalf("Wrong centroid: %s", clusters[0].Center.Seq)
	}
}

func TestClusterSplitsTrueVariants(t *testing.T) {
	center := "ACGTACGTACGTACGTACGT"
	// Nine substitutions, far too abundant to be sequencing error
	variant := "TCGATCGATCGATCGATCGT"
	qual := qualString(len(center), 'I')

	uniques := []*mhcflow.UniqueSeq{
		mhcflow.NewUniqueSeq(center, 1000, qual),
		mhcflow.NewUniqueSeq(variant, 500, qual),
	}
	clusters := mhcflow.Cluster(uniques, mhcflow.NewPhredModel())
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].Abundance != 1000 || clusters[1].Abundance != 500 {
		t.Fatalf("Unexpected abundances: %d, %d",
			clusters[0].Abundance, clusters[1].Abundance)
	}
}

func TestClusterSeparatesLengthClasses(t *testing.T) {
	uniques := []*mhcflow.UniqueSeq{
		mhcflow.NewUniqueSeq("ACGTACGTACGTACGTACGT", 1000, qualString(20, 'I')),
		mhcflow.NewUniqueSeq("ACGTACGTACGTACGTAC", 10, qualString(18, 'I')),
	}
	clusters := mhcflow.Cluster(uniques, mhcflow.NewPhredModel())
	// A substitution-only model cannot absorb a shorter sequence
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(clusters))
	}
}

func TestDereplicate(t *testing.T) {
	fastq := "@r1\nACGTACGT\n+\nIIIIIIII\n" +
		"@r2\nACGTACGT\n+\nIIIIIIII\n" +
		"@r3\nTTTTACGT\n+\nIIIIIIII\n"
	path := filepath.Join(t.TempDir(), "reads.fastq")
	if err := ioutil.WriteFile(path, []byte(fastq), 0644); err != nil {
		t.Fatal(err)
	}

	uniques, err := mhcflow.Dereplicate(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(uniques) != 2 {
		t.Fatalf("Expected 2 unique sequences, got %d", len(uniques))
	}
	if uniques[0].Seq != "ACGTACGT" || uniques[0].Count != 2 {
		t.Fatalf("Expected ACGTACGT x2 first, got %s x%d",
			uniques[0].Seq, uniques[0].Count)
	}
	if uniques[1].Count != 1 {
		t.Fatalf("Expected singleton second, got %d", uniques[1].Count)
	}
}

func TestCountMapRoundtrip(t *testing.T) {
	counts := map[string]int{"ACGT": 100, "TTTT": 7}
	path := filepath.Join(t.TempDir(), "counts.tsv")
	if err := mhcflow.WriteCountMap(path, counts); err != nil {
		t.Fatal(err)
	}
	loaded, err := mhcflow.ReadCountMap(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded["ACGT"] != 100 || loaded["TTTT"] != 7 {
		t.Fatalf("Roundtrip corrupted counts: %v", loaded)
	}
}
