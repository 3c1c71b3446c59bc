// Command epcheck verifies the consistency of chunked episodic datasets
// before and after a transform (realignment, shuffle, metadata repair). It
// compares a reference dataset against a candidate and reports the violated
// invariant when the pair diverges.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kestrelrobotics/epcheck/core/check"
	"github.com/kestrelrobotics/epcheck/core/fingerprint"
	"github.com/kestrelrobotics/epcheck/internal/config"
	"github.com/kestrelrobotics/epcheck/internal/fpcache"
	"github.com/kestrelrobotics/epcheck/internal/lerobot"
	"github.com/kestrelrobotics/epcheck/internal/logging"
	"github.com/kestrelrobotics/epcheck/internal/reportstore"
)

const version = "0.2.0"

// CLI defines the command-line interface for epcheck.
var CLI struct {
	// Global flags
	Config    string `help:"Config file path" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`
	ReportDB  string `name:"report-db" help:"Report database path" type:"path"`

	Check   CheckCmd    `cmd:"" help:"Check a candidate dataset against a reference"`
	Sweep   SweepCmd    `cmd:"" help:"Sequentially load every frame of a dataset"`
	Info    InfoGroup   `cmd:"" help:"Dataset metadata operations"`
	Report  ReportGroup `cmd:"" help:"Stored report operations"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// InfoGroup contains dataset metadata operations.
type InfoGroup struct {
	Patch InfoPatchCmd `cmd:"" help:"Rewrite info.json's data_files list from discovered files"`
}

// ReportGroup contains stored report operations.
type ReportGroup struct {
	List ReportListCmd `cmd:"" help:"List stored reports"`
	Show ReportShowCmd `cmd:"" help:"Print a stored report"`
}

// runtime is the resolved configuration shared by commands.
type runtime struct {
	cfg config.Config
}

// setup loads the config file and applies global flag overrides.
func setup() (*runtime, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.LogFormat = CLI.LogFormat
	}
	if CLI.ReportDB != "" {
		cfg.ReportDB = CLI.ReportDB
	}
	if cfg.ReportDB == "" {
		cfg.ReportDB = reportstore.DefaultPath()
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(level, format)

	return &runtime{cfg: cfg}, nil
}

// CheckCmd runs the consistency checker over a dataset pair.
type CheckCmd struct {
	Reference string  `arg:"" help:"Reference dataset root" type:"existingdir"`
	Candidate string  `arg:"" help:"Candidate dataset root" type:"existingdir"`
	Relation  string  `help:"Declared relation (identity-order, permutation)" default:"identity-order"`
	Tolerance float64 `help:"Absolute action tolerance (overrides config)"`
	RawVideo  bool    `name:"raw-video" help:"Decode sidecar raw tensor frames for the video check"`
	UseIndex  bool    `name:"use-index" help:"Build a fingerprint index over the reference for permutation matching"`
	NoStore   bool    `name:"no-store" help:"Do not persist the report"`
}

func (c *CheckCmd) Run() error {
	rt, err := setup()
	if err != nil {
		return err
	}

	rel, err := check.ParseRelation(c.Relation)
	if err != nil {
		return err
	}

	var openOpts []lerobot.Option
	if c.RawVideo {
		openOpts = append(openOpts, lerobot.WithDecoder(lerobot.RawDecoder))
	}

	ref, err := lerobot.Open(c.Reference, openOpts...)
	if err != nil {
		return fmt.Errorf("open reference: %w", err)
	}
	defer ref.Close()

	cand, err := lerobot.Open(c.Candidate, openOpts...)
	if err != nil {
		return fmt.Errorf("open candidate: %w", err)
	}
	defer cand.Close()

	opts := check.Options{
		Tolerance:      rt.cfg.Tolerance,
		AlignPrefix:    rt.cfg.AlignPrefix,
		PrefixFrames:   rt.cfg.PrefixFrames,
		Strategy:       check.SampleStrategy(rt.cfg.SampleStrategy),
		SkipVideo:      !c.RawVideo,
		ReferenceLabel: c.Reference,
		CandidateLabel: c.Candidate,
	}
	if c.Tolerance > 0 {
		opts.Tolerance = c.Tolerance
	}

	if c.UseIndex && rel == check.RelationPermutation {
		var store fingerprint.Store
		if rt.cfg.FingerprintCache != "" {
			cache, err := fpcache.Open(rt.cfg.FingerprintCache)
			if err != nil {
				logging.Warn("fingerprint cache unavailable", "path", rt.cfg.FingerprintCache, "error", err)
			} else {
				defer cache.Close()
				store = cache
			}
		}
		index, err := fingerprint.BuildIndex(ref, c.Reference, opts.PrefixFrames, opts.Tolerance, store)
		if err != nil {
			return fmt.Errorf("build fingerprint index: %w", err)
		}
		opts.Index = index
	}

	report, checkErr := check.Check(ref, cand, rel, opts)
	if report != nil {
		out, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if !c.NoStore {
			if err := saveReport(rt.cfg.ReportDB, report); err != nil {
				logging.Warn("report not persisted", "error", err)
			}
		}
	}
	if checkErr != nil {
		return checkErr
	}
	if report.Failed() {
		return fmt.Errorf("consistency check failed: report %s", report.ID)
	}
	return nil
}

func saveReport(dbPath string, report *check.Report) error {
	store, err := reportstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(report)
}

// SweepCmd sequentially fetches every frame of a dataset.
type SweepCmd struct {
	Root     string `arg:"" help:"Dataset root" type:"existingdir"`
	RawVideo bool   `name:"raw-video" help:"Decode sidecar raw tensor frames during the sweep"`
}

func (c *SweepCmd) Run() error {
	if _, err := setup(); err != nil {
		return err
	}

	var openOpts []lerobot.Option
	if c.RawVideo {
		openOpts = append(openOpts, lerobot.WithDecoder(lerobot.RawDecoder))
	}
	ds, err := lerobot.Open(c.Root, openOpts...)
	if err != nil {
		return err
	}
	defer ds.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := check.Sweep(ctx, ds)
	if result != nil {
		fmt.Printf("swept %d frames in %s\n", result.Frames, result.Duration)
	}
	return err
}

// InfoPatchCmd rewrites the data_files list in meta/info.json.
type InfoPatchCmd struct {
	Root string `arg:"" help:"Dataset root" type:"existingdir"`
}

func (c *InfoPatchCmd) Run() error {
	if _, err := setup(); err != nil {
		return err
	}

	files, err := lerobot.PatchInfoDataFiles(c.Root)
	if err != nil {
		return err
	}
	fmt.Printf("updated %s/meta/info.json\n", c.Root)
	fmt.Printf("  found %d data files:\n", len(files))
	for _, f := range files {
		fmt.Printf("    - %s\n", f)
	}
	return nil
}

// ReportListCmd lists stored reports.
type ReportListCmd struct {
	Limit int `help:"Maximum number of reports to list" default:"20"`
}

func (c *ReportListCmd) Run() error {
	rt, err := setup()
	if err != nil {
		return err
	}
	store, err := reportstore.Open(rt.cfg.ReportDB)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(c.Limit)
	if err != nil {
		return err
	}
	for _, sum := range list {
		fmt.Printf("%s  %s  %-13s %-6s %s -> %s\n",
			sum.ID, sum.CreatedAt, sum.Relation, sum.Status, sum.Reference, sum.Candidate)
	}
	return nil
}

// ReportShowCmd prints one stored report as JSON.
type ReportShowCmd struct {
	ID string `arg:"" help:"Report ID"`
}

func (c *ReportShowCmd) Run() error {
	rt, err := setup()
	if err != nil {
		return err
	}
	store, err := reportstore.Open(rt.cfg.ReportDB)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Get(c.ID)
	if err != nil {
		return err
	}
	out, err := report.ToJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("epcheck %s (report format %s, sqlite driver %s)\n",
		version, check.Version, reportstore.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("epcheck"),
		kong.Description("Consistency checker for chunked episodic robot-learning datasets."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
