/*
 *  mhcflow.go
 *  cmd
 */

package main

import (
	"os"
	"strings"
	"time"

	logging "github.com/op/go-logging"
	"github.com/popgenlab/mhcflow"
	"github.com/urfave/cli"
)

var log = logging.MustGetLogger("main")

// banner prints the separate steps
func banner(message string) {
	message = "* " + message + " *"
	log.Noticef(strings.Repeat("*", len(message)))
	log.Noticef(message)
	log.Noticef(strings.Repeat("*", len(message)))
}

// paramsFromContext collects every threshold flag into one Params value.
// Flag defaults mirror DefaultParams, so only explicitly set flags need to
// override; not every subcommand defines every flag.
func paramsFromContext(c *cli.Context) mhcflow.Params {
	p := mhcflow.DefaultParams()
	if c.IsSet("maxEE") {
		p.MaxEE = c.Float64("maxEE")
	}
	if c.IsSet("maxNs") {
		p.MaxNs = c.Int("maxNs")
	}
	if c.IsSet("trimF") {
		p.TrimForward = c.Int("trimF")
	}
	if c.IsSet("trimR") {
		p.TrimReverse = c.Int("trimR")
	}
	if c.IsSet("minOverlap") {
		p.MinOverlap = c.Int("minOverlap")
	}
	if c.IsSet("maxMergeDiffs") {
		p.MaxMergeDiffs = c.Int("maxMergeDiffs")
	}
	if c.IsSet("targetLength") {
		p.TargetLength = c.Int("targetLength")
	}
	if c.IsSet("chimeraMethod") {
		p.ChimeraMethod = c.String("chimeraMethod")
	}
	if c.IsSet("minSampleReads") {
		p.MinSampleReads = c.Int("minSampleReads")
	}
	if c.IsSet("minCellSupport") {
		p.MinCellSupport = c.Int("minCellSupport")
	}
	if c.IsSet("minFreq") {
		p.MinRelFreq = c.Float64("minFreq")
	}
	if c.IsSet("minPrevalence") {
		p.MinPrevalence = c.Int("minPrevalence")
	}
	return p
}

// run builds the command interface and dispatches
func run() error {
	app := cli.NewApp()
	app.Compiled = time.Now()
	app.Name = "MHCFLOW"
	app.Usage = "MHC amplicon variant calling and filtering"
	app.Version = mhcflow.Version

	defaults := mhcflow.DefaultParams()

	preprocessFlags := []cli.Flag{
		cli.Float64Flag{
			Name:  "maxEE",
			Usage: "Maximum expected errors per filtered read",
			Value: defaults.MaxEE,
		},
		cli.IntFlag{
			Name:  "maxNs",
			Usage: "Maximum ambiguous bases per read",
			Value: defaults.MaxNs,
		},
		cli.IntFlag{
			Name:  "trimF",
			Usage: "Bases clipped off the right end of forward reads",
			Value: defaults.TrimForward,
		},
		cli.IntFlag{
			Name:  "trimR",
			Usage: "Bases clipped off the right end of reverse reads",
			Value: defaults.TrimReverse,
		},
	}

	denoiseFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "rounds",
			Usage: "Error model refinement rounds",
			Value: 2,
		},
	}

	mergeFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "minOverlap",
			Usage: "Minimum forward/reverse overlap for a merge",
			Value: defaults.MinOverlap,
		},
		cli.IntFlag{
			Name:  "maxMergeDiffs",
			Usage: "Maximum mismatches tolerated in the overlap",
			Value: defaults.MaxMergeDiffs,
		},
	}

	filterFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "targetLength",
			Usage: "Amplicon length to keep, 0 = detect modal length",
			Value: defaults.TargetLength,
		},
		cli.StringFlag{
			Name:  "chimeraMethod",
			Usage: "Chimera removal method (consensus or none)",
			Value: defaults.ChimeraMethod,
		},
		cli.IntFlag{
			Name:  "minSampleReads",
			Usage: "Minimum total reads for a sample to be kept",
			Value: defaults.MinSampleReads,
		},
		cli.IntFlag{
			Name:  "minCellSupport",
			Usage: "Minimum reads supporting a variant call in one sample",
			Value: defaults.MinCellSupport,
		},
		cli.Float64Flag{
			Name:  "minFreq",
			Usage: "Minimum within-sample frequency of a variant call",
			Value: defaults.MinRelFreq,
		},
		cli.IntFlag{
			Name:  "minPrevalence",
			Usage: "Variants in this many samples or fewer are dropped",
			Value: defaults.MinPrevalence,
		},
	}

	allFlags := append(append(append(append([]cli.Flag{}, preprocessFlags...),
		denoiseFlags...), mergeFlags...), filterFlags...)

	app.Commands = []cli.Command{
		{
			Name:  "preprocess",
			Usage: "Quality-filter and trim raw paired reads",
			UsageText: `
	mhcflow preprocess indir workdir [options]

Preprocess function:
Discover paired FASTQ files (<id>_R1/<id>_R2) in indir, right-trim the primer
remnants, drop read pairs with ambiguous bases or too many expected errors,
and write filtered fastq.gz files plus the read tracking table into workdir.
`,
			Flags: preprocessFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify indir and workdir", 1)
				}
				p := mhcflow.Preprocessor{
					InDir:   c.Args().Get(0),
					WorkDir: c.Args().Get(1),
					Params:  paramsFromContext(c),
				}
				return p.Run()
			},
		},
		{
			Name:  "denoise",
			Usage: "Learn error models and infer per-sample variants",
			UsageText: `
	mhcflow denoise workdir [options]

Denoise function:
Dereplicate the filtered reads of every sample, learn one substitution-error
model per read direction from the pooled samples, then partition each
sample's unique sequences into maximum-likelihood variant clusters.
`,
			Flags: denoiseFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify workdir", 1)
				}
				p := mhcflow.Denoiser{
					WorkDir: c.Args().Get(0),
					Params:  paramsFromContext(c),
					Rounds:  c.Int("rounds"),
				}
				return p.Run()
			},
		},
		{
			Name:  "merge",
			Usage: "Overlap-merge forward and reverse variants",
			UsageText: `
	mhcflow merge workdir [options]

Merge function:
Pair each sample's forward and reverse denoised variants by minimum-mismatch
bipartite assignment and merge the accepted pairs into full-length amplicon
sequences. Pairs without an acceptable ungapped overlap are rejected.
`,
			Flags: mergeFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify workdir", 1)
				}
				p := mhcflow.Merger{
					WorkDir: c.Args().Get(0),
					Params:  paramsFromContext(c),
				}
				return p.Run()
			},
		},
		{
			Name:  "table",
			Usage: "Build the samples-by-variants table and run the filter stages",
			UsageText: `
	mhcflow table workdir [options]

Table function:
Assemble all samples' merged sequence counts into one dense abundance table,
then apply the fixed filter order: length filter, chimera removal,
individual-failure exclusion, prevalence filter, cell-support filter and
relative-frequency filter. Writes the final table as TSV, NumPy and FASTA.
`,
			Flags: filterFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify workdir", 1)
				}
				workdir := c.Args().Get(0)
				builder := mhcflow.TableBuilder{WorkDir: workdir}
				if err := builder.Run(); err != nil {
					return err
				}
				p := mhcflow.Filterer{
					WorkDir: workdir,
					Params:  paramsFromContext(c),
				}
				return p.Run()
			},
		},
		{
			Name:  "stats",
			Usage: "Summarize the final table for downstream analyses",
			UsageText: `
	mhcflow stats workdir

Stats function:
Report per-sample read depth, variant count and Shannon diversity, and the
pairwise p-distance matrix of the final variants.
`,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify workdir", 1)
				}
				p := mhcflow.Reporter{WorkDir: c.Args().Get(0)}
				return p.Run()
			},
		},
		{
			Name:  "pipeline",
			Usage: "Run preprocess-denoise-merge-table-stats sequentially",
			UsageText: `
	mhcflow pipeline indir workdir [options]

Pipeline:
A convenience driver function. Chain the following steps sequentially.

- preprocess
- denoise
- merge
- table
- stats
`,
			Flags: allFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify indir and workdir", 1)
				}
				indir := c.Args().Get(0)
				workdir := c.Args().Get(1)
				params := paramsFromContext(c)

				banner("Preprocess started")
				preprocessor := mhcflow.Preprocessor{
					InDir: indir, WorkDir: workdir, Params: params,
				}
				if err := preprocessor.Run(); err != nil {
					return err
				}

				banner("Denoise started")
				denoiser := mhcflow.Denoiser{
					WorkDir: workdir, Params: params, Rounds: c.Int("rounds"),
				}
				if err := denoiser.Run(); err != nil {
					return err
				}

				banner("Merge started")
				merger := mhcflow.Merger{WorkDir: workdir, Params: params}
				if err := merger.Run(); err != nil {
					return err
				}

				banner("Table build and filtering started")
				builder := mhcflow.TableBuilder{WorkDir: workdir}
				if err := builder.Run(); err != nil {
					return err
				}
				filterer := mhcflow.Filterer{WorkDir: workdir, Params: params}
				if err := filterer.Run(); err != nil {
					return err
				}

				banner("Stats started")
				reporter := mhcflow.Reporter{WorkDir: workdir}
				return reporter.Run()
			},
		},
	}

	return app.Run(os.Args)
}
