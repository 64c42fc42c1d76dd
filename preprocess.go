/*
 *  preprocess.go
 *  mhcflow
 */

package mhcflow

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// Preprocessor applies the hard quality, length and content filters to the
// raw paired reads of every sample
type Preprocessor struct {
	InDir   string
	WorkDir string
	Params  Params
	// Output
	Samples []*Sample
}

// Run kicks off the Preprocessor
func (r *Preprocessor) Run() error {
	samples, err := DiscoverSamples(r.InDir)
	if err != nil {
		return err
	}
	r.Samples = samples

	if err := os.MkdirAll(r.WorkDir, 0755); err != nil {
		return err
	}

	for _, sample := range samples {
		if err := r.filterSample(sample); err != nil {
			return err
		}
		if sample.Filtered == 0 {
			log.Warningf("Sample %s: quality collapse, no reads survived filtering", sample.ID)
		} else if sample.Filtered < r.Params.MinSampleReads {
			log.Warningf("Sample %s: only %d reads survived filtering (threshold %d)",
				sample.ID, sample.Filtered, r.Params.MinSampleReads)
		}
	}

	outfile := trackingFile(r.WorkDir)
	if err := WriteTracking(outfile, samples); err != nil {
		return err
	}
	log.Notice("Success")
	return nil
}

func trackingFile(workdir string) string {
	return workdir + "/reads.tracking.tsv"
}

// filterSample streams one sample's mates in lockstep and writes the
// surviving pairs to gzipped FASTQ
func (r *Preprocessor) filterSample(sample *Sample) error {
	mustExist(sample.ForwardFile)
	mustExist(sample.ReverseFile)
	seq.ValidateSeq = false // This flag makes parsing FASTQ much faster

	fReader, err := fastx.NewDefaultReader(sample.ForwardFile)
	if err != nil {
		return err
	}
	rReader, err := fastx.NewDefaultReader(sample.ReverseFile)
	if err != nil {
		return err
	}

	fOut, err := xopen.Wopen(sample.FilteredForward(r.WorkDir))
	if err != nil {
		return err
	}
	defer fOut.Close()
	rOut, err := xopen.Wopen(sample.FilteredReverse(r.WorkDir))
	if err != nil {
		return err
	}
	defer rOut.Close()

	raw, kept := 0, 0
	for {
		fRec, fErr := fReader.Read()
		rRec, rErr := rReader.Read()
		if fErr == io.EOF && rErr == io.EOF {
			break
		}
		if fErr == io.EOF || rErr == io.EOF {
			return fmt.Errorf("sample %s: unequal read counts in mate files", sample.ID)
		}
		if fErr != nil {
			return fErr
		}
		if rErr != nil {
			return rErr
		}
		if !sameReadID(fRec.Name, rRec.Name) {
			return fmt.Errorf("sample %s: mate ID mismatch at read %d (%s vs %s)",
				sample.ID, raw+1, fRec.Name, rRec.Name)
		}
		raw++

		fwd := trimRight(fRec, r.Params.TrimForward)
		rev := trimRight(rRec, r.Params.TrimReverse)
		if fwd == nil || rev == nil {
			continue
		}
		if !r.passes(fwd) || !r.passes(rev) {
			continue
		}

		kept++
		fwd.FormatToWriter(fOut, 0)
		rev.FormatToWriter(rOut, 0)
	}

	sample.Raw = raw
	sample.Filtered = kept
	log.Noticef("Sample %s: retained %s after quality filtering",
		sample.ID, Percentage(kept, raw))
	return nil
}

// passes applies the ambiguous-base and expected-error filters
func (r *Preprocessor) passes(rec *fastx.Record) bool {
	if countNs(rec.Seq.Seq) > r.Params.MaxNs {
		return false
	}
	return ExpectedErrors(rec.Seq.Qual) <= r.Params.MaxEE
}

// trimRight clips the primer remnant off the right end of a read. A read
// shorter than the clip length cannot carry amplicon signal and is dropped.
func trimRight(rec *fastx.Record, n int) *fastx.Record {
	length := len(rec.Seq.Seq)
	if length <= n {
		return nil
	}
	clipped := rec.Clone()
	clipped.Seq.Seq = clipped.Seq.Seq[:length-n]
	clipped.Seq.Qual = clipped.Seq.Qual[:length-n]
	return clipped
}

// sameReadID compares the mate IDs up to the first whitespace, tolerating
// the legacy /1 and /2 suffixes
func sameReadID(a, b []byte) bool {
	a = bytes.Fields(a)[0]
	b = bytes.Fields(b)[0]
	a = bytes.TrimSuffix(a, []byte("/1"))
	b = bytes.TrimSuffix(b, []byte("/2"))
	return bytes.Equal(a, b)
}
