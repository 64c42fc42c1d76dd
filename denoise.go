/*
 *  denoise.go
 *  mhcflow
 */

package mhcflow

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
)

// UniqueSeq is one dereplicated sequence with its read count and the
// per-position quality sums of all duplicates
type UniqueSeq struct {
	Seq      string
	Count    int
	qualSums []int
	meanQual []byte
}

// NewUniqueSeq builds a dereplicated sequence from a representative
// quality string, as if count identical reads had been observed
func NewUniqueSeq(s string, count int, qual []byte) *UniqueSeq {
	u := &UniqueSeq{Seq: s, Count: count}
	u.qualSums = make([]int, len(qual))
	for i, q := range qual {
		u.qualSums[i] = (int(q) - PhredOffset) * count
	}
	return u
}

// MeanQual returns the average quality string across all duplicate reads
func (r *UniqueSeq) MeanQual() []byte {
	if r.meanQual == nil {
		r.meanQual = make([]byte, len(r.qualSums))
		for i, s := range r.qualSums {
			r.meanQual[i] = byte(s/r.Count) + PhredOffset
		}
	}
	return r.meanQual
}

// addQual accumulates one duplicate's quality string
func (r *UniqueSeq) addQual(qual []byte) {
	if r.qualSums == nil {
		r.qualSums = make([]int, len(qual))
	}
	for i := 0; i < len(qual) && i < len(r.qualSums); i++ {
		r.qualSums[i] += int(qual[i]) - PhredOffset
	}
	r.meanQual = nil
}

// SeqCluster groups unique sequences believed to derive from one true variant
type SeqCluster struct {
	Center    *UniqueSeq
	Members   []*UniqueSeq
	Abundance int
}

// Dereplicate collapses a FASTQ stream into exact-sequence counts
func Dereplicate(fastqfile string) ([]*UniqueSeq, error) {
	mustExist(fastqfile)
	seq.ValidateSeq = false
	reader, err := fastx.NewDefaultReader(fastqfile)
	if err != nil {
		return nil, err
	}

	byseq := make(map[string]*UniqueSeq)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		s := strings.ToUpper(string(rec.Seq.Seq))
		u, ok := byseq[s]
		if !ok {
			u = &UniqueSeq{Seq: s}
			byseq[s] = u
		}
		u.Count++
		u.addQual(rec.Seq.Qual)
	}

	uniques := make([]*UniqueSeq, 0, len(byseq))
	for _, u := range byseq {
		uniques = append(uniques, u)
	}
	sortUniques(uniques)
	return uniques, nil
}

// sortUniques orders by decreasing abundance, ties broken by sequence so
// that runs are deterministic
func sortUniques(uniques []*UniqueSeq) {
	sort.Slice(uniques, func(i, j int) bool {
		if uniques[i].Count != uniques[j].Count {
			return uniques[i].Count > uniques[j].Count
		}
		return uniques[i].Seq < uniques[j].Seq
	})
}

// Cluster partitions unique sequences into maximum-likelihood variant
// clusters. Sequences are visited in decreasing abundance; each joins the
// centroid most likely to have generated it by sequencing error, unless its
// abundance is too large to be explained that way (Poisson tail below
// OmegaA), in which case it seeds a new cluster.
func Cluster(uniques []*UniqueSeq, model *ErrorModel) []*SeqCluster {
	var clusters []*SeqCluster
	for _, u := range uniques {
		best := -1
		bestLL := math.Inf(-1)
		for i, cluster := range clusters {
			ll := model.LogLambda(cluster.Center.Seq, u.Seq, u.MeanQual())
			if ll > bestLL {
				bestLL, best = ll, i
			}
		}
		if best >= 0 && !math.IsInf(bestLL, -1) {
			expected := math.Exp(bestLL) * float64(clusters[best].Abundance)
			if poissonTail(expected, u.Count) >= OmegaA {
				clusters[best].Members = append(clusters[best].Members, u)
				clusters[best].Abundance += u.Count
				continue
			}
		}
		clusters = append(clusters, &SeqCluster{
			Center:    u,
			Members:   []*UniqueSeq{u},
			Abundance: u.Count,
		})
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Abundance != clusters[j].Abundance {
			return clusters[i].Abundance > clusters[j].Abundance
		}
		return clusters[i].Center.Seq < clusters[j].Center.Seq
	})
	return clusters
}

// Denoiser learns the forward and reverse error models from all samples,
// then infers each sample's variant clusters
type Denoiser struct {
	WorkDir string
	Params  Params
	Rounds  int
	// Output
	Samples []*Sample
}

// Run kicks off the Denoiser
func (r *Denoiser) Run() error {
	samples, err := ReadTracking(trackingFile(r.WorkDir))
	if err != nil {
		return err
	}
	r.Samples = samples
	rounds := r.Rounds
	if rounds == 0 {
		rounds = 2
	}

	type direction struct {
		label    string
		filtered func(Sample, string) string
		denoised func(Sample, string) string
		counter  func(*Sample, int)
	}
	directions := []direction{
		{"forward", Sample.FilteredForward, Sample.DenoisedForward,
			func(s *Sample, n int) { s.DenoisedF = n }},
		{"reverse", Sample.FilteredReverse, Sample.DenoisedReverse,
			func(s *Sample, n int) { s.DenoisedR = n }},
	}

	for _, dir := range directions {
		// Learn one model per direction from the pooled samples
		var pooled []*UniqueSeq
		perSample := make([][]*UniqueSeq, len(samples))
		for i, sample := range samples {
			uniques, err := Dereplicate(dir.filtered(*sample, r.WorkDir))
			if err != nil {
				return err
			}
			perSample[i] = uniques
			pooled = append(pooled, uniques...)
		}
		sortUniques(pooled)
		log.Noticef("Learning %s error model from %d unique sequences", dir.label, len(pooled))
		model := LearnErrorModel(pooled, rounds)
		modelfile := r.WorkDir + "/err" + strings.ToUpper(dir.label[:1]) + ".model.tsv"
		if err := model.WriteTSV(modelfile); err != nil {
			return err
		}

		for i, sample := range samples {
			clusters := Cluster(perSample[i], model)
			counts := make(map[string]int, len(clusters))
			total := 0
			for _, cluster := range clusters {
				counts[cluster.Center.Seq] = cluster.Abundance
				total += cluster.Abundance
			}
			dir.counter(sample, total)
			outfile := dir.denoised(*sample, r.WorkDir)
			if err := WriteCountMap(outfile, counts); err != nil {
				return err
			}
			log.Noticef("Sample %s (%s): %d variants from %d unique sequences",
				sample.ID, dir.label, len(clusters), len(perSample[i]))
		}
	}

	if err := WriteTracking(trackingFile(r.WorkDir), samples); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}

// WriteCountMap writes a sequence → count table, most abundant first
func WriteCountMap(outfile string, counts map[string]int) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	fmt.Fprintf(w, "#Sequence\tCount\n")
	for _, s := range sortedByCount(counts) {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	return w.Flush()
}

// ReadCountMap loads a sequence → count table written by WriteCountMap
func ReadCountMap(infile string) (map[string]int, error) {
	mustExist(infile)
	fh := mustOpen(infile)
	defer fh.Close()

	counts := make(map[string]int)
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Split(line, "\t")
		if len(words) != 2 {
			return nil, fmt.Errorf("malformed count line: %s", line)
		}
		count, err := strconv.Atoi(words[1])
		if err != nil {
			return nil, fmt.Errorf("malformed count in line: %s", line)
		}
		counts[words[0]] = count
	}
	return counts, scanner.Err()
}
