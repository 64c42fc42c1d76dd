/*
 *  merge.go
 *  mhcflow
 */

package mhcflow

import (
	hungarianAlgorithm "github.com/oddg/hungarian-algorithm"
)

// unmergeableCost marks forward/reverse pairs with no acceptable overlap
const unmergeableCost = 1 << 20

// Merger combines each sample's forward and reverse variant sets into
// full-length merged sequences by ungapped overlap alignment
type Merger struct {
	WorkDir string
	Params  Params
	// Output
	Samples []*Sample
}

// overlapHit is the best ungapped overlap of a forward sequence against a
// reverse-complemented reverse sequence
type overlapHit struct {
	merged  string
	overlap int
	diffs   int
}

// bestOverlap slides the reverse-complemented reverse sequence along the
// forward sequence and keeps the lowest-mismatch overlap of acceptable
// length. Only substitution differences are considered; indels are rejected
// by construction.
func bestOverlap(fwd, rc string, minOverlap int) (overlapHit, bool) {
	best := overlapHit{diffs: unmergeableCost}
	found := false
	maxO := min(len(fwd), len(rc))
	for o := maxO; o >= minOverlap; o-- {
		diffs := 0
		fOff := len(fwd) - o
		for i := 0; i < o; i++ {
			if fwd[fOff+i] != rc[i] {
				diffs++
				if diffs >= best.diffs {
					break
				}
			}
		}
		if diffs < best.diffs {
			// Forward read takes precedence inside the overlap
			best = overlapHit{
				merged:  fwd + rc[o:],
				overlap: o,
				diffs:   diffs,
			}
			found = true
		}
	}
	return best, found
}

// MergePair attempts to merge one forward/reverse sequence pair under the
// configured overlap policy
func MergePair(fwd, rev string, params Params) (string, bool) {
	rc := ReverseComplement(rev)
	hit, ok := bestOverlap(fwd, rc, params.MinOverlap)
	if !ok || hit.diffs > params.MaxMergeDiffs {
		return "", false
	}
	return hit.merged, true
}

// MergeSample pairs a sample's forward and reverse variant sets by
// minimum-cost bipartite assignment on overlap mismatches, then merges the
// accepted pairs. The merged abundance of a pair is the smaller of the two
// directional abundances.
func MergeSample(fCounts, rCounts map[string]int, params Params) map[string]int {
	fSeqs := sortedByCount(fCounts)
	rSeqs := sortedByCount(rCounts)
	merged := make(map[string]int)
	if len(fSeqs) == 0 || len(rSeqs) == 0 {
		return merged
	}

	// Square cost matrix, padded with unmergeable sentinels
	n := max(len(fSeqs), len(rSeqs))
	costs := Make2DSlice(n, n)
	hits := make(map[[2]int]string)
	for i := range costs {
		for j := range costs[i] {
			costs[i][j] = unmergeableCost
			if i >= len(fSeqs) || j >= len(rSeqs) {
				continue
			}
			if m, ok := MergePair(fSeqs[i], rSeqs[j], params); ok {
				rc := ReverseComplement(rSeqs[j])
				hit, _ := bestOverlap(fSeqs[i], rc, params.MinOverlap)
				costs[i][j] = hit.diffs
				hits[[2]int{i, j}] = m
			}
		}
	}

	solution, err := hungarianAlgorithm.Solve(costs)
	if err != nil {
		log.Errorf("Assignment failed, falling back to rank pairing (%s)", err)
		solution = make([]int, n)
		for i := range solution {
			solution[i] = i
		}
	}

	for i, j := range solution {
		seq, ok := hits[[2]int{i, j}]
		if !ok {
			continue
		}
		count := min(fCounts[fSeqs[i]], rCounts[rSeqs[j]])
		if count > 0 {
			merged[seq] += count
		}
	}
	return merged
}

// Run kicks off the Merger
func (r *Merger) Run() error {
	samples, err := ReadTracking(trackingFile(r.WorkDir))
	if err != nil {
		return err
	}
	r.Samples = samples

	for _, sample := range samples {
		fCounts, err := ReadCountMap(sample.DenoisedForward(r.WorkDir))
		if err != nil {
			return err
		}
		rCounts, err := ReadCountMap(sample.DenoisedReverse(r.WorkDir))
		if err != nil {
			return err
		}

		merged := MergeSample(fCounts, rCounts, r.Params)
		total := 0
		for _, count := range merged {
			total += count
		}
		sample.Merged = total

		if sample.DenoisedF > 0 {
			log.Noticef("Sample %s: merged %s", sample.ID,
				Percentage(total, sample.DenoisedF))
		}
		if total == 0 {
			log.Warningf("Sample %s: merge failure, no read pairs overlapped", sample.ID)
		}

		if err := WriteCountMap(sample.MergedFile(r.WorkDir), merged); err != nil {
			return err
		}
	}

	if err := WriteTracking(trackingFile(r.WorkDir), samples); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}
