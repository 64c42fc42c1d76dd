/*
 *  stats.go
 *  mhcflow
 */

package mhcflow

import (
	"bufio"
	"fmt"
	"math"
	"os"

	"github.com/gonum/matrix/mat64"
)

// PDistance is the proportion of differing positions between two aligned
// sequences. Rows of the final table share one amplicon length, so no
// gapped alignment is needed.
func PDistance(a, b string) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	diffs := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diffs++
		}
	}
	return float64(diffs) / float64(n)
}

// PDistanceMatrix computes the symmetric pairwise p-distance matrix over
// the table's variant sequences
func PDistanceMatrix(t *SeqTable) *mat64.Dense {
	n := t.NRows()
	m := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := PDistance(t.Seqs[i], t.Seqs[j])
			m.Set(i, j, d)
			m.Set(j, i, d)
		}
	}
	return m
}

// ShannonDiversity is the Shannon index over one sample's variant
// frequencies
func ShannonDiversity(counts []int) float64 {
	total := sum(counts)
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		h -= p * math.Log(p)
	}
	return h
}

// Reporter summarizes the final filtered table for downstream diversity
// and selection analyses
type Reporter struct {
	WorkDir string
	// Output
	Table *SeqTable
}

// Run kicks off the Reporter
func (r *Reporter) Run() error {
	t, err := ReadSeqTableTSV(finalTableFile(r.WorkDir))
	if err != nil {
		return err
	}
	r.Table = t

	if err := r.writeSampleStats(r.WorkDir + "/samples.stats.tsv"); err != nil {
		return err
	}
	if err := r.writePDistances(r.WorkDir + "/variants.pdist.tsv"); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}

// writeSampleStats writes per-sample depth, variant count (the gene-copy
// number proxy) and Shannon diversity
func (r *Reporter) writeSampleStats(outfile string) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	t := r.Table
	variantCounts := t.VariantCounts()
	fmt.Fprintf(w, "#Sample\tReads\tVariants\tShannon\n")
	for j, id := range t.Samples {
		column := make([]int, t.NRows())
		for i := range t.Counts {
			column[i] = t.Counts[i][j]
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n",
			id, t.ColumnTotal(j), variantCounts[j], ShannonDiversity(column))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Noticef("Per-sample statistics written to `%s`", outfile)
	return nil
}

// writePDistances writes the pairwise p-distance matrix and logs the mean
func (r *Reporter) writePDistances(outfile string) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	t := r.Table
	m := PDistanceMatrix(t)
	n := t.NRows()

	fmt.Fprintf(w, "#Variant")
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "\tvariant%04d", i+1)
	}
	fmt.Fprintln(w)
	total, pairs := 0.0, 0
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "variant%04d", i+1)
		for j := 0; j < n; j++ {
			fmt.Fprintf(w, "\t%.4f", m.At(i, j))
			if j > i {
				total += m.At(i, j)
				pairs++
			}
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if pairs > 0 {
		log.Noticef("Mean pairwise p-distance %.4f over %d variant pairs", total/float64(pairs), pairs)
	}
	log.Noticef("p-distance matrix written to `%s`", outfile)
	return nil
}
