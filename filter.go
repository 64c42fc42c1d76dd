/*
 *  filter.go
 *  mhcflow
 */

package mhcflow

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// FilterLength keeps only rows whose sequence length equals the target
// amplicon length. With TargetLength unset the modal length is used,
// provided it covers a dominant share of the rows; otherwise the analyst
// must intervene.
func FilterLength(t *SeqTable, params Params) (*SeqTable, error) {
	dist := t.LengthDistribution()
	target := params.TargetLength
	if target == 0 {
		lengths := make([]float64, 0, t.NRows())
		for _, s := range t.Seqs {
			lengths = append(lengths, float64(len(s)))
		}
		modes, err := stats.Mode(lengths)
		if err != nil || len(modes) != 1 {
			return nil, fmt.Errorf("no single dominant sequence length (%d length classes), set -targetLength", len(dist))
		}
		median, _ := stats.Median(lengths)
		target = int(modes[0])
		if float64(dist[target]) < DominantLengthFraction*float64(t.NRows()) {
			return nil, fmt.Errorf("modal length %d covers only %s of rows, set -targetLength after review",
				target, Percentage(dist[target], t.NRows()))
		}
		log.Noticef("Detected modal length %d bp (median %.0f bp, %d length classes)",
			target, median, len(dist))
	}

	var keep []int
	for i, s := range t.Seqs {
		if len(s) == target {
			keep = append(keep, i)
		}
	}
	out := t.SubsetRows(keep)
	if out.NRows() == 0 {
		return nil, fmt.Errorf("empty table after length filter")
	}
	log.Noticef("Length filter (%d bp): kept %s of rows",
		target, Percentage(out.NRows(), t.NRows()))
	return out, nil
}

// DropFailedSamples removes sample columns whose total retained reads fall
// below the configured minimum. Runs before any prevalence-based stage so
// that failed samples cannot bias prevalence.
func DropFailedSamples(t *SeqTable, params Params) (*SeqTable, error) {
	var keep []int
	for j := range t.Samples {
		if t.ColumnTotal(j) >= params.MinSampleReads {
			keep = append(keep, j)
		} else {
			log.Warningf("Sample %s excluded: %d reads < %d",
				t.Samples[j], t.ColumnTotal(j), params.MinSampleReads)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("all samples below %d reads", params.MinSampleReads)
	}
	out := t.SubsetSamples(keep)
	log.Noticef("Individual-failure exclusion: kept %s of samples",
		Percentage(out.NSamples(), t.NSamples()))
	return out, nil
}

// dropLowPrevalence keeps rows observed in more than minPrevalence samples
func dropLowPrevalence(t *SeqTable, minPrevalence int) (*SeqTable, error) {
	var keep []int
	for i := range t.Seqs {
		if t.Prevalence(i) > minPrevalence {
			keep = append(keep, i)
		}
	}
	out := t.SubsetRows(keep)
	if out.NRows() == 0 {
		return nil, fmt.Errorf("empty table after prevalence filter (> %d)", minPrevalence)
	}
	return out, nil
}

// FilterPrevalence drops singleton-sample variants (pass 1 of the
// prevalence rule)
func FilterPrevalence(t *SeqTable, params Params) (*SeqTable, error) {
	out, err := dropLowPrevalence(t, params.MinPrevalence)
	if err != nil {
		return nil, err
	}
	log.Noticef("Prevalence filter (> %d samples): kept %s of rows",
		params.MinPrevalence, Percentage(out.NRows(), t.NRows()))
	return out, nil
}

// FilterCellSupport zeroes cells supported by fewer than MinCellSupport
// reads (a cell exactly at the threshold is retained), re-applies the
// prevalence rule, and drops columns left empty by the zeroing
func FilterCellSupport(t *SeqTable, params Params) (*SeqTable, error) {
	out := t.Clone()
	zeroed := 0
	for i := range out.Counts {
		for j, count := range out.Counts[i] {
			if count > 0 && count < params.MinCellSupport {
				out.Counts[i][j] = 0
				zeroed++
			}
		}
	}

	out, err := dropLowPrevalence(out, params.MinPrevalence)
	if err != nil {
		return nil, fmt.Errorf("empty table after cell-support filter (>= %d)", params.MinCellSupport)
	}

	var keep []int
	for j := range out.Samples {
		if out.ColumnTotal(j) > 0 {
			keep = append(keep, j)
		} else {
			log.Warningf("Sample %s has no supported variant calls left", out.Samples[j])
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("no samples left after cell-support filter")
	}
	out = out.SubsetSamples(keep)
	log.Noticef("Cell-support filter (>= %d reads): zeroed %d cells, kept %d rows, %d samples",
		params.MinCellSupport, zeroed, out.NRows(), out.NSamples())
	return out, nil
}

// FilterRelFreq zeroes cells whose within-sample frequency falls below
// MinRelFreq (exact threshold retained), then re-applies the prevalence
// rule. Frequencies are computed against column totals of the current
// table state.
func FilterRelFreq(t *SeqTable, params Params) (*SeqTable, error) {
	out := t.Clone()
	totals := make([]int, out.NSamples())
	for j := range totals {
		totals[j] = out.ColumnTotal(j)
	}
	zeroed := 0
	for i := range out.Counts {
		for j, count := range out.Counts[i] {
			if count == 0 || totals[j] == 0 {
				continue
			}
			if float64(count)/float64(totals[j]) < params.MinRelFreq {
				out.Counts[i][j] = 0
				zeroed++
			}
		}
	}

	out, err := dropLowPrevalence(out, params.MinPrevalence)
	if err != nil {
		return nil, fmt.Errorf("empty table after relative-frequency filter (>= %.3f)", params.MinRelFreq)
	}
	log.Noticef("Relative-frequency filter (>= %.1f %%): zeroed %d cells, kept %d rows",
		params.MinRelFreq*100, zeroed, out.NRows())
	return out, nil
}

// Filterer applies the fixed, ordered filter stages to the raw table. Each
// stage consumes the previous stage's table by value handoff; the order is
// part of the contract and must not change.
type Filterer struct {
	WorkDir string
	Params  Params
	// Output
	Samples []*Sample
	Table   *SeqTable
}

// Run kicks off the Filterer
func (r *Filterer) Run() error {
	samples, err := ReadTracking(trackingFile(r.WorkDir))
	if err != nil {
		return err
	}
	r.Samples = samples

	t, err := ReadSeqTableTSV(rawTableFile(r.WorkDir))
	if err != nil {
		return err
	}
	t, err = r.Apply(t)
	if err != nil {
		return err
	}
	r.Table = t

	if err := t.WriteTSV(finalTableFile(r.WorkDir)); err != nil {
		return err
	}
	if err := t.WriteNpy(r.WorkDir + "/variants.final.npy"); err != nil {
		return err
	}
	if err := t.WriteFasta(r.WorkDir + "/variants.final.fasta"); err != nil {
		return err
	}
	if err := WriteTracking(trackingFile(r.WorkDir), samples); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}

// Apply runs the six stages in order and annotates the sample records
func (r *Filterer) Apply(t *SeqTable) (*SeqTable, error) {
	logState := func(stage string, t *SeqTable) {
		log.Noticef("After %s: %d variants, %d samples, depth %d",
			stage, t.NRows(), t.NSamples(), t.TotalDepth())
	}

	t, err := FilterLength(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("length filter", t)

	t, err = RemoveChimeras(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("chimera removal", t)
	r.recordNonChimeric(t)

	t, err = DropFailedSamples(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("individual-failure exclusion", t)
	r.markFailed(t)

	t, err = FilterPrevalence(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("prevalence filter", t)

	t, err = FilterCellSupport(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("cell-support filter", t)

	t, err = FilterRelFreq(t, r.Params)
	if err != nil {
		return nil, err
	}
	logState("relative-frequency filter", t)

	return t, nil
}

// recordNonChimeric stores each sample's post-chimera read total
func (r *Filterer) recordNonChimeric(t *SeqTable) {
	for j, id := range t.Samples {
		for _, sample := range r.Samples {
			if sample.ID == id {
				sample.NonChimeric = t.ColumnTotal(j)
			}
		}
	}
}

// markFailed flags samples whose column was dropped at Stage 3
func (r *Filterer) markFailed(t *SeqTable) {
	kept := make(map[string]bool, t.NSamples())
	for _, id := range t.Samples {
		kept[id] = true
	}
	for _, sample := range r.Samples {
		if !kept[sample.ID] {
			sample.Failed = true
		}
	}
}
