/*
 *  table.go
 *  mhcflow
 */

package mhcflow

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
)

// SeqTable is the samples-by-variants abundance matrix. Counts holds data
// columns only; prevalence, totals and per-sample variant counts are always
// recomputed from Counts so that derived values can never leak into the
// cardinality of any filter stage.
type SeqTable struct {
	Samples []string
	Seqs    []string
	Counts  [][]int // shape: len(Seqs) x len(Samples)
}

// NewSeqTable assembles the per-sample merged sequence counts into a dense
// table. The row set is the union of all sequences observed anywhere; cells
// for a sequence absent from a sample are explicit zeros. Sequences are
// compared by exact string identity only.
func NewSeqTable(samples []string, counts map[string]map[string]int) *SeqTable {
	union := make(map[string]int)
	for _, sample := range samples {
		for s, count := range counts[sample] {
			union[s] += count
		}
	}
	seqs := sortedByCount(union)

	t := &SeqTable{
		Samples: append([]string{}, samples...),
		Seqs:    seqs,
		Counts:  Make2DSlice(len(seqs), len(samples)),
	}
	for i, s := range seqs {
		for j, sample := range samples {
			t.Counts[i][j] = counts[sample][s]
		}
	}
	return t
}

// NRows returns the number of variant rows
func (t *SeqTable) NRows() int { return len(t.Seqs) }

// NSamples returns the number of sample columns
func (t *SeqTable) NSamples() int { return len(t.Samples) }

// Prevalence counts the samples in which row i is observed
func (t *SeqTable) Prevalence(i int) int {
	n := 0
	for _, count := range t.Counts[i] {
		if count > 0 {
			n++
		}
	}
	return n
}

// TotalAbundance sums row i across all samples
func (t *SeqTable) TotalAbundance(i int) int {
	return sum(t.Counts[i])
}

// ColumnTotal sums sample column j across all rows
func (t *SeqTable) ColumnTotal(j int) int {
	total := 0
	for i := range t.Counts {
		total += t.Counts[i][j]
	}
	return total
}

// TotalDepth sums the entire table
func (t *SeqTable) TotalDepth() int {
	total := 0
	for i := range t.Counts {
		total += sum(t.Counts[i])
	}
	return total
}

// VariantCounts returns, per sample, the number of variants with nonzero
// abundance, the inferred gene-copy-number proxy
func (t *SeqTable) VariantCounts() []int {
	counts := make([]int, t.NSamples())
	for i := range t.Counts {
		for j, count := range t.Counts[i] {
			if count > 0 {
				counts[j]++
			}
		}
	}
	return counts
}

// Clone returns a deep copy so that stages hand off values, never aliases
func (t *SeqTable) Clone() *SeqTable {
	c := &SeqTable{
		Samples: append([]string{}, t.Samples...),
		Seqs:    append([]string{}, t.Seqs...),
		Counts:  Make2DSlice(t.NRows(), t.NSamples()),
	}
	for i := range t.Counts {
		copy(c.Counts[i], t.Counts[i])
	}
	return c
}

// SubsetRows keeps the given row indices, in order
func (t *SeqTable) SubsetRows(keep []int) *SeqTable {
	c := &SeqTable{Samples: append([]string{}, t.Samples...)}
	for _, i := range keep {
		c.Seqs = append(c.Seqs, t.Seqs[i])
		row := make([]int, t.NSamples())
		copy(row, t.Counts[i])
		c.Counts = append(c.Counts, row)
	}
	return c
}

// SubsetSamples keeps the given sample columns, in order
func (t *SeqTable) SubsetSamples(keep []int) *SeqTable {
	c := &SeqTable{Seqs: append([]string{}, t.Seqs...)}
	for _, j := range keep {
		c.Samples = append(c.Samples, t.Samples[j])
	}
	c.Counts = Make2DSlice(t.NRows(), len(keep))
	for i := range t.Counts {
		for jj, j := range keep {
			c.Counts[i][jj] = t.Counts[i][j]
		}
	}
	return c
}

// LengthDistribution tallies row sequence lengths
func (t *SeqTable) LengthDistribution() map[int]int {
	dist := make(map[int]int)
	for _, s := range t.Seqs {
		dist[len(s)]++
	}
	return dist
}

// WriteTSV writes the table with the derived summary fields appended as
// trailing columns. The derived columns exist only in the serialized form;
// ReadTSV drops them again.
func (t *SeqTable) WriteTSV(outfile string) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	fmt.Fprintf(w, "#Sequence\tLength")
	for _, sample := range t.Samples {
		fmt.Fprintf(w, "\t%s", sample)
	}
	fmt.Fprintf(w, "\tPrevalence\tTotalAbundance\n")

	for i, s := range t.Seqs {
		fmt.Fprintf(w, "%s\t%d", s, len(s))
		for _, count := range t.Counts[i] {
			fmt.Fprintf(w, "\t%d", count)
		}
		fmt.Fprintf(w, "\t%d\t%d\n", t.Prevalence(i), t.TotalAbundance(i))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	log.Noticef("Table of %d variants x %d samples written to `%s`",
		t.NRows(), t.NSamples(), outfile)
	return nil
}

// ReadSeqTableTSV loads a table written by WriteTSV, discarding the
// derived trailing columns
func ReadSeqTableTSV(infile string) (*SeqTable, error) {
	mustExist(infile)
	fh := mustOpen(infile)
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 16*1024*1024), 16*1024*1024)

	t := &SeqTable{}
	nDerived := 2 // Prevalence, TotalAbundance
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\n")
		if line == "" {
			continue
		}
		words := strings.Split(line, "\t")
		if strings.HasPrefix(line, "#") {
			if len(words) < 2+nDerived {
				return nil, fmt.Errorf("malformed table header: %s", line)
			}
			t.Samples = append(t.Samples, words[2:len(words)-nDerived]...)
			continue
		}
		if len(words) != 2+len(t.Samples)+nDerived {
			return nil, fmt.Errorf("malformed table row: %s", line)
		}
		t.Seqs = append(t.Seqs, words[0])
		row := make([]int, len(t.Samples))
		for j := range row {
			count, err := strconv.Atoi(words[2+j])
			if err != nil {
				return nil, fmt.Errorf("malformed count in row: %s", line)
			}
			row[j] = count
		}
		t.Counts = append(t.Counts, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(t.Samples) == 0 {
		return nil, fmt.Errorf("no header found in `%s`", infile)
	}
	log.Noticef("Loaded table of %d variants x %d samples from `%s`",
		t.NRows(), t.NSamples(), infile)
	return t, nil
}

// WriteNpy exports the counts matrix in NumPy format for downstream
// numeric consumers, row-major, variants x samples
func (t *SeqTable) WriteNpy(outfile string) error {
	w, err := gonpy.NewFileWriter(outfile)
	if err != nil {
		return err
	}
	w.Shape = []int{t.NRows(), t.NSamples()}
	data := make([]int64, 0, t.NRows()*t.NSamples())
	for i := range t.Counts {
		for _, count := range t.Counts[i] {
			data = append(data, int64(count))
		}
	}
	if err := w.WriteInt64(data); err != nil {
		return err
	}
	log.Noticef("Counts matrix written to `%s`", outfile)
	return nil
}

// WriteFasta writes the variant sequences for external alignment tools.
// Variants are named by rank, most abundant first.
func (t *SeqTable) WriteFasta(outfile string) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	order := make([]int, t.NRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.TotalAbundance(order[a]) > t.TotalAbundance(order[b])
	})
	for rank, i := range order {
		fmt.Fprintf(w, ">variant%04d length=%d total=%d prevalence=%d\n%s\n",
			rank+1, len(t.Seqs[i]), t.TotalAbundance(i), t.Prevalence(i), t.Seqs[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Noticef("%d variant sequences written to `%s`", t.NRows(), outfile)
	return nil
}

// TableBuilder assembles the merged per-sample counts into the raw table
type TableBuilder struct {
	WorkDir string
	// Output
	Samples []*Sample
	Table   *SeqTable
}

// Run kicks off the TableBuilder
func (r *TableBuilder) Run() error {
	samples, err := ReadTracking(trackingFile(r.WorkDir))
	if err != nil {
		return err
	}
	r.Samples = samples

	ids := make([]string, 0, len(samples))
	counts := make(map[string]map[string]int, len(samples))
	for _, sample := range samples {
		merged, err := ReadCountMap(sample.MergedFile(r.WorkDir))
		if err != nil {
			return err
		}
		ids = append(ids, sample.ID)
		counts[sample.ID] = merged
	}

	r.Table = NewSeqTable(ids, counts)
	if r.Table.NRows() == 0 {
		return fmt.Errorf("empty table: no merged sequences in any sample")
	}
	if err := r.Table.WriteTSV(rawTableFile(r.WorkDir)); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}

func rawTableFile(workdir string) string {
	return workdir + "/variants.raw.tsv"
}

func finalTableFile(workdir string) string {
	return workdir + "/variants.final.tsv"
}
