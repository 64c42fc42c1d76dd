/*
 *  base.go
 *  mhcflow
 */

package mhcflow

import (
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	logging "github.com/op/go-logging"
)

const (
	// Version is the current version of MHCFLOW
	Version = "0.3.1"
	// DefaultMaxEE is the maximum expected errors allowed per filtered read
	DefaultMaxEE = 0.1
	// DefaultMaxNs is the maximum number of ambiguous bases allowed per read
	DefaultMaxNs = 0
	// DefaultTrimForward is the number of bases clipped off the right end of forward reads
	DefaultTrimForward = 20
	// DefaultTrimReverse is the number of bases clipped off the right end of reverse reads
	DefaultTrimReverse = 20
	// DefaultMinOverlap is the minimum forward/reverse overlap for a merge
	DefaultMinOverlap = 12
	// DefaultMaxMergeDiffs is the maximum mismatches tolerated in the overlap
	DefaultMaxMergeDiffs = 0
	// DefaultMinSampleReads is the minimum total reads for a sample to be kept
	DefaultMinSampleReads = 1000
	// DefaultMinCellSupport is the minimum reads supporting a variant call in one sample
	DefaultMinCellSupport = 100
	// DefaultMinRelFreq is the minimum within-sample frequency of a variant call
	DefaultMinRelFreq = 0.05
	// DefaultMinPrevalence is the prevalence at or below which a variant is dropped
	DefaultMinPrevalence = 1
	// DominantLengthFraction is the fraction of rows the modal length must cover
	DominantLengthFraction = 0.8
	// ChimeraConsensusFraction is the fraction of containing samples that must flag
	// a sequence before it is removed as chimeric
	ChimeraConsensusFraction = 0.9
	// MinParentFold is how much more abundant a chimera parent must be than the child
	MinParentFold = 2.0
	// OmegaA is the abundance p-value below which a sequence seeds its own cluster
	OmegaA = 1e-40
	// MaxQual is the highest Phred score modeled
	MaxQual = 45
	// PhredOffset converts FASTQ quality characters to Phred scores
	PhredOffset = 33
)

// Params collects every tunable threshold of the pipeline so that a run is
// reproducible from a single configuration value
type Params struct {
	MaxEE          float64 // max expected errors per read
	MaxNs          int     // max ambiguous bases per read
	TrimForward    int     // right trim on forward reads
	TrimReverse    int     // right trim on reverse reads
	MinOverlap     int     // min overlap for pair merging
	MaxMergeDiffs  int     // max mismatches in the overlap
	TargetLength   int     // amplicon length, 0 = detect modal length
	ChimeraMethod  string  // "consensus" or "none"
	MinSampleReads int     // Stage 3 column threshold
	MinCellSupport int     // Stage 5 cell threshold
	MinRelFreq     float64 // Stage 6 frequency threshold
	MinPrevalence  int     // Stages 4/5/6 row threshold
}

// DefaultParams returns the thresholds used for the published analysis
func DefaultParams() Params {
	return Params{
		MaxEE:          DefaultMaxEE,
		MaxNs:          DefaultMaxNs,
		TrimForward:    DefaultTrimForward,
		TrimReverse:    DefaultTrimReverse,
		MinOverlap:     DefaultMinOverlap,
		MaxMergeDiffs:  DefaultMaxMergeDiffs,
		TargetLength:   0,
		ChimeraMethod:  "consensus",
		MinSampleReads: DefaultMinSampleReads,
		MinCellSupport: DefaultMinCellSupport,
		MinRelFreq:     DefaultMinRelFreq,
		MinPrevalence:  DefaultMinPrevalence,
	}
}

var log = logging.MustGetLogger("mhcflow")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// errorProbs converts a quality character directly to an error probability
var errorProbs [256]float64

func init() {
	for i := range errorProbs {
		errorProbs[i] = math.Pow(10, float64(i-PhredOffset)/-10)
	}
}

// ExpectedErrors sums the per-base error probabilities of a quality string
func ExpectedErrors(qual []byte) float64 {
	sum := 0.0
	for _, q := range qual {
		sum += errorProbs[q]
	}
	return sum
}

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// Percentage prints a human readable message of the percentage
func Percentage(a, b int) string {
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}

// mustExist checks if a file exists, aborts otherwise
func mustExist(filename string) {
	if _, err := os.Stat(filename); err != nil {
		log.Fatalf("File `%s` not found (%s)", filename, err)
	}
}

// mustOpen opens a file for reading, aborts on failure
func mustOpen(filename string) *os.File {
	fh, err := os.Open(filename)
	if err != nil {
		log.Fatalf("Cannot open file `%s` (%s)", filename, err)
	}
	return fh
}

// ErrorAbort logs the error and stops the run
func ErrorAbort(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// min gets the minimum for two ints
func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// max gets the maximum for two ints
func max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// sum gets the sum for an int slice
func sum(a []int) int {
	ans := 0
	for _, x := range a {
		ans += x
	}
	return ans
}

// Make2DSlice allocates a 2D matrix with shape (m, n)
func Make2DSlice(m, n int) [][]int {
	P := make([][]int, m)
	for i := 0; i < m; i++ {
		P[i] = make([]int, n)
	}
	return P
}

var complement = map[byte]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N',
	'a': 't', 'c': 'g', 'g': 'c', 't': 'a', 'n': 'n',
}

// ReverseComplement returns the reverse complement of a nucleotide sequence
func ReverseComplement(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c, ok := complement[s[len(s)-1-i]]
		if !ok {
			c = 'N'
		}
		b[i] = c
	}
	return string(b)
}

// countNs counts ambiguous bases in a sequence
func countNs(seq []byte) int {
	n := 0
	for _, c := range seq {
		if c == 'N' || c == 'n' {
			n++
		}
	}
	return n
}

// sortedByCount returns the map keys ordered by decreasing count, ties broken
// lexicographically so that runs are deterministic
func sortedByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// poissonTail returns P(X >= k) for X ~ Poisson(lambda)
func poissonTail(lambda float64, k int) float64 {
	if k <= 0 {
		return 1.0
	}
	if lambda <= 0 {
		return 0.0
	}
	cdf := 0.0
	logTerm := -lambda
	for i := 0; i < k; i++ {
		if i > 0 {
			logTerm += math.Log(lambda) - math.Log(float64(i))
		}
		cdf += math.Exp(logTerm)
	}
	if cdf >= 1 {
		return 0.0
	}
	return 1 - cdf
}
