/*
 *  sample.go
 *  mhcflow
 */

package mhcflow

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// TrackingHeader is written on top of the read tracking file
const TrackingHeader = "#Sample\tRaw\tFiltered\tDenoisedF\tDenoisedR\tMerged\tNonChimeric\tFailed\n"

// Sample is one sequenced individual, annotated with read counts as it
// passes through the pipeline stages
type Sample struct {
	ID          string
	ForwardFile string
	ReverseFile string
	Raw         int
	Filtered    int
	DenoisedF   int
	DenoisedR   int
	Merged      int
	NonChimeric int
	Failed      bool
}

// String outputs one row of the tracking table
func (r Sample) String() string {
	failed := "no"
	if r.Failed {
		failed = "yes"
	}
	return fmt.Sprintf("%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s",
		r.ID, r.Raw, r.Filtered, r.DenoisedF, r.DenoisedR,
		r.Merged, r.NonChimeric, failed)
}

// FilteredForward is the path of the quality-filtered forward reads
func (r Sample) FilteredForward(workdir string) string {
	return path.Join(workdir, r.ID+"_F.filt.fastq.gz")
}

// FilteredReverse is the path of the quality-filtered reverse reads
func (r Sample) FilteredReverse(workdir string) string {
	return path.Join(workdir, r.ID+"_R.filt.fastq.gz")
}

// DenoisedForward is the path of the forward variant table
func (r Sample) DenoisedForward(workdir string) string {
	return path.Join(workdir, r.ID+"_F.denoised.tsv")
}

// DenoisedReverse is the path of the reverse variant table
func (r Sample) DenoisedReverse(workdir string) string {
	return path.Join(workdir, r.ID+"_R.denoised.tsv")
}

// MergedFile is the path of the merged variant table
func (r Sample) MergedFile(workdir string) string {
	return path.Join(workdir, r.ID+".merged.tsv")
}

// pairSuffixes are the filename conventions for forward/reverse mates
var pairSuffixes = [][2]string{
	{"_R1.fastq.gz", "_R2.fastq.gz"},
	{"_R1.fastq", "_R2.fastq"},
	{"_1.fastq.gz", "_2.fastq.gz"},
	{"_1.fastq", "_2.fastq"},
}

// DiscoverSamples scans a directory for paired FASTQ files following the
// <id>_R1/<id>_R2 (or <id>_1/<id>_2) convention. A forward file without its
// mate is a fatal input malformation.
func DiscoverSamples(indir string) ([]*Sample, error) {
	mustExist(indir)
	entries, err := ioutil.ReadDir(indir)
	if err != nil {
		return nil, err
	}

	var samples []*Sample
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, suffix := range pairSuffixes {
			if !strings.HasSuffix(name, suffix[0]) {
				continue
			}
			id := strings.TrimSuffix(name, suffix[0])
			forward := filepath.Join(indir, name)
			reverse := filepath.Join(indir, id+suffix[1])
			if _, err := os.Stat(reverse); err != nil {
				return nil, fmt.Errorf("sample %s: reverse mate `%s` missing", id, reverse)
			}
			samples = append(samples, &Sample{
				ID:          id,
				ForwardFile: forward,
				ReverseFile: reverse,
			})
			break
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no paired FASTQ files found in `%s`", indir)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ID < samples[j].ID
	})
	log.Noticef("Discovered %d paired samples in `%s`", len(samples), indir)
	return samples, nil
}

// ReadTracking loads the tracking file back into Sample records so that any
// stage can be re-run in isolation
func ReadTracking(infile string) ([]*Sample, error) {
	mustExist(infile)
	fh := mustOpen(infile)
	defer fh.Close()

	var samples []*Sample
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Split(line, "\t")
		if len(words) < 8 {
			return nil, fmt.Errorf("malformed tracking line: %s", line)
		}
		sample := &Sample{ID: words[0]}
		counters := []*int{&sample.Raw, &sample.Filtered, &sample.DenoisedF,
			&sample.DenoisedR, &sample.Merged, &sample.NonChimeric}
		for i, field := range counters {
			if _, err := fmt.Sscanf(words[i+1], "%d", field); err != nil {
				return nil, fmt.Errorf("malformed tracking line: %s", line)
			}
		}
		sample.Failed = words[7] == "yes"
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	log.Noticef("Loaded tracking for %d samples from `%s`", len(samples), infile)
	return samples, nil
}

// WriteTracking writes the per-sample read counts to the tracking file
func WriteTracking(outfile string, samples []*Sample) error {
	f, err := os.Create(outfile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer f.Close()

	fmt.Fprintf(w, TrackingHeader)
	for _, sample := range samples {
		fmt.Fprintf(w, "%s\n", sample)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Noticef("Read tracking for %d samples written to `%s`", len(samples), outfile)
	return nil
}
