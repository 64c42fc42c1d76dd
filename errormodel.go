/*
 *  errormodel.go
 *  mhcflow
 */

package mhcflow

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// rateFloor keeps every transition rate strictly positive so that log
// likelihoods stay finite
const rateFloor = 1e-7

var baseIndex = [256]int8{}
var bases = [4]byte{'A', 'C', 'G', 'T'}

func init() {
	for i := range baseIndex {
		baseIndex[i] = -1
	}
	for i, b := range bases {
		baseIndex[b] = int8(i)
		baseIndex[b+'a'-'A'] = int8(i)
	}
}

// ErrorModel stores the estimated substitution rate for every
// (true base, observed base, quality score) combination
type ErrorModel struct {
	rates [4][4][MaxQual + 1]float64
}

// NewPhredModel builds the null model where each quality score q implies an
// error probability of 10^(-q/10), split evenly across the three mismatches
func NewPhredModel() *ErrorModel {
	m := &ErrorModel{}
	for q := 0; q <= MaxQual; q++ {
		p := math.Pow(10, -float64(q)/10)
		if p > 0.75 {
			p = 0.75
		}
		for t := 0; t < 4; t++ {
			for o := 0; o < 4; o++ {
				if t == o {
					m.rates[t][o][q] = 1 - p
				} else {
					m.rates[t][o][q] = p / 3
				}
			}
		}
	}
	return m
}

// Rate returns the probability of observing base o at quality q when the
// true base is t
func (m *ErrorModel) Rate(t, o byte, q int) float64 {
	ti, oi := baseIndex[t], baseIndex[o]
	if ti < 0 || oi < 0 {
		return rateFloor
	}
	if q < 0 {
		q = 0
	} else if q > MaxQual {
		q = MaxQual
	}
	return m.rates[ti][oi][q]
}

// LogLambda is the log probability that the observed sequence was generated
// from the true sequence by per-base sequencing error. Sequences of unequal
// length cannot be explained by a substitution-only model.
func (m *ErrorModel) LogLambda(truth, observed string, qual []byte) float64 {
	if len(truth) != len(observed) || len(observed) != len(qual) {
		return math.Inf(-1)
	}
	ll := 0.0
	for i := 0; i < len(observed); i++ {
		q := int(qual[i]) - PhredOffset
		ll += math.Log(m.Rate(truth[i], observed[i], q))
	}
	return ll
}

// transitionCounts tallies observed (true, observed, quality) triples
type transitionCounts struct {
	counts [4][4][MaxQual + 1]float64
}

// observe adds one unique sequence, weighted by its read count, compared
// against the centroid it was assigned to
func (c *transitionCounts) observe(truth, observed string, qual []byte, weight int) {
	for i := 0; i < len(observed) && i < len(truth) && i < len(qual); i++ {
		ti, oi := baseIndex[truth[i]], baseIndex[observed[i]]
		if ti < 0 || oi < 0 {
			continue
		}
		q := int(qual[i]) - PhredOffset
		if q < 0 {
			q = 0
		} else if q > MaxQual {
			q = MaxQual
		}
		c.counts[ti][oi][q] += float64(weight)
	}
}

// toModel converts tallied counts into rates with add-one pseudocounts;
// quality bins with no observations keep the Phred null
func (c *transitionCounts) toModel() *ErrorModel {
	m := NewPhredModel()
	for t := 0; t < 4; t++ {
		for q := 0; q <= MaxQual; q++ {
			total := 0.0
			for o := 0; o < 4; o++ {
				total += c.counts[t][o][q]
			}
			if total == 0 {
				continue
			}
			for o := 0; o < 4; o++ {
				rate := (c.counts[t][o][q] + 1) / (total + 4)
				if rate < rateFloor {
					rate = rateFloor
				}
				m.rates[t][o][q] = rate
			}
		}
	}
	return m
}

// LearnErrorModel estimates the error-rate matrix from the pooled unique
// sequences of all samples in one read direction. It alternates clustering
// under the current model with re-tallying the transitions of every unique
// sequence against its centroid.
func LearnErrorModel(uniques []*UniqueSeq, rounds int) *ErrorModel {
	model := NewPhredModel()
	for round := 0; round < rounds; round++ {
		clusters := Cluster(uniques, model)
		tally := &transitionCounts{}
		for _, cluster := range clusters {
			for _, member := range cluster.Members {
				tally.observe(cluster.Center.Seq, member.Seq, member.MeanQual(), member.Count)
			}
		}
		model = tally.toModel()
		log.Noticef("Error model round %d: %d clusters from %d unique sequences",
			round+1, len(clusters), len(uniques))
	}
	return model
}

// WriteTSV dumps the rate matrix, one transition per row, one quality
// score per column
func (m *ErrorModel) WriteTSV(outfile string) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	fmt.Fprintf(w, "#Transition")
	for q := 0; q <= MaxQual; q++ {
		fmt.Fprintf(w, "\tQ%d", q)
	}
	fmt.Fprintln(w)
	for t := 0; t < 4; t++ {
		for o := 0; o < 4; o++ {
			fmt.Fprintf(w, "%c2%c", bases[t], bases[o])
			for q := 0; q <= MaxQual; q++ {
				fmt.Fprintf(w, "\t%.6g", m.rates[t][o][q])
			}
			fmt.Fprintln(w)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Noticef("Error model written to `%s`", outfile)
	return nil
}

// ReadErrorModelTSV loads a rate matrix written by WriteTSV
func ReadErrorModelTSV(infile string) (*ErrorModel, error) {
	mustExist(infile)
	fh := mustOpen(infile)
	defer fh.Close()

	m := NewPhredModel()
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Split(line, "\t")
		if len(words) != MaxQual+2 || len(words[0]) != 3 {
			return nil, fmt.Errorf("malformed error model line: %s", line)
		}
		ti, oi := baseIndex[words[0][0]], baseIndex[words[0][2]]
		if ti < 0 || oi < 0 {
			return nil, fmt.Errorf("unknown transition: %s", words[0])
		}
		for q := 0; q <= MaxQual; q++ {
			rate, err := strconv.ParseFloat(words[q+1], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed rate in line: %s", line)
			}
			m.rates[ti][oi][q] = rate
		}
	}
	return m, scanner.Err()
}
