package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/goinsane/xlog"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"

	"github.com/bizzlechizzle/aupat-sub000/catalog"
	"github.com/bizzlechizzle/aupat-sub000/config"
	"github.com/bizzlechizzle/aupat-sub000/layout"
	"github.com/bizzlechizzle/aupat-sub000/probe"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

func main() {
	exitCode := run()
	time.Sleep(250 * time.Millisecond)
	os.Exit(exitCode)
}

func run() int {
	var (
		verbose    int
		debugMode  bool
		workDir    string
		configPath string
	)
	flag.IntVar(&verbose, "v", 0, "verbose level")
	flag.BoolVar(&debugMode, "debug", false, "debug mode")
	flag.StringVar(&workDir, "w", ".", "working directory")
	flag.StringVar(&configPath, "c", "", "config file path")
	flag.Parse()

	xlogOutputFlags := xlog.OutputFlagDate |
		xlog.OutputFlagTime |
		xlog.OutputFlagSeverity |
		xlog.OutputFlagPadding |
		xlog.OutputFlagFields
	if debugMode {
		xlog.SetSeverity(xlog.SeverityDebug)
		xlogOutputFlags |= xlog.OutputFlagStackTrace
	}
	xlog.SetStackTraceSeverity(xlog.SeverityWarning)
	xlog.SetVerbose(xlog.Verbose(verbose))
	xlog.SetOutputWriter(os.Stdout)
	xlog.SetOutputFlags(xlogOutputFlags)

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		ctxCancel()
	}()

	workDir = prepareWorkDir(workDir)

	cfg, err := config.Load(configPath, workDir)
	if err != nil {
		xlog.Fatalf("config load error: %v", err)
	}

	cat, err := catalog.New(cfg.CatalogPath)
	if err != nil {
		xlog.Fatalf("catalog initialize error: %v", err)
	}
	defer cat.Close()

	prober := &probe.Prober{
		ExiftoolBin: cfg.Probe.Exiftool,
		FfprobeBin:  cfg.Probe.Ffprobe,
		Timeout:     cfg.ProbeTimeout(),
		Rules:       probeRules(cfg),
	}

	args := flag.Args()
	if len(args) < 1 {
		xlog.Fatal("command required")
	}
	var cmd interface {
		Command() *command
		Prepare()
		Run(ctx context.Context) error
	}
	cmdName := args[0]
	args = args[1:]
	flagSet := flag.NewFlagSet(cmdName, flag.ExitOnError)
	switch cmdName {
	case "import":
		c := &importCommand{}
		flagSet.StringVar(&c.SrcDir, "s", "", "source directory")
		flagSet.StringVar(&c.Loc, "loc", "", "target location uuid or uuid8")
		flagSet.StringVar(&c.Sub, "sub", "", "target sub-location uuid or uuid8")
		flagSet.BoolVar(&c.Backup, "backup", false, "back up the catalog before the run")
		flagSet.Parse(args)
		cmd = c
	case "organize":
		c := &organizeCommand{}
		flagSet.StringVar(&c.Loc, "loc", "", "location scope (default all)")
		flagSet.Parse(args)
		cmd = c
	case "folders":
		c := &foldersCommand{}
		flagSet.StringVar(&c.Loc, "loc", "", "location scope (default all)")
		flagSet.Parse(args)
		cmd = c
	case "ingest":
		c := &ingestCommand{}
		flagSet.StringVar(&c.Loc, "loc", "", "location scope (default all)")
		flagSet.Parse(args)
		cmd = c
	case "verify":
		c := &verifyCommand{}
		flagSet.StringVar(&c.Loc, "loc", "", "location scope (default all)")
		flagSet.BoolVar(&c.DryRun, "n", false, "dry run: report only, delete nothing")
		flagSet.Parse(args)
		cmd = c
	case "addloc":
		c := &addlocCommand{}
		flagSet.StringVar(&c.Name, "name", "", "location name")
		flagSet.StringVar(&c.State, "state", "", "two-letter state code")
		flagSet.StringVar(&c.Type, "type", "", "location type")
		flagSet.StringVar(&c.SubType, "subtype", "", "location sub-type")
		flagSet.StringVar(&c.Address, "address", "", "street address")
		flagSet.Float64Var(&c.Lat, "lat", 0, "latitude")
		flagSet.Float64Var(&c.Lon, "lon", 0, "longitude")
		flagSet.Parse(args)
		cmd = c
	default:
		xlog.Fatalf("command %q unknown", cmdName)
		return 1
	}

	*cmd.Command() = command{
		Config:  cfg,
		Catalog: cat,
		Prober:  prober,
	}
	cmd.Prepare()

	xlog.Info("started")

	var runErr error
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = cmd.Run(ctx)
		ctxCancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		xlog.Info("terminating")
	}()

	wg.Wait()
	xlog.Info("terminated")
	if runErr != nil {
		xlog.Errorf("run error: %v", runErr)
		return 1
	}
	return 0
}

func probeRules(cfg *config.Config) []probe.Rule {
	rules := make([]probe.Rule, 0, len(cfg.Hardware))
	for _, r := range cfg.Hardware {
		hw := layout.Hardware(r.Category)
		switch hw {
		case layout.HardwareCamera, layout.HardwarePhone, layout.HardwareDrone,
			layout.HardwareAction, layout.HardwareDashCam, layout.HardwareFilm,
			layout.HardwareOther:
		default:
			xlog.Fatalf("hardware rule %q has unknown category %q", r.Match, r.Category)
		}
		rules = append(rules, probe.Rule{Match: r.Match, Category: hw})
	}
	return rules
}

func prepareWorkDir(workDir string) (absWorkDir string) {
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		xlog.Fatalf("working directory abs error: %v", err)
	}
	stat, err := os.Lstat(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			xlog.Fatalf("working directory stat error: %v", err)
		}
		err = os.Mkdir(workDir, 0755)
		if err != nil {
			xlog.Fatalf("working directory create error: %v", err)
		}
		stat, err = os.Lstat(workDir)
		if err != nil {
			xlog.Fatalf("working directory stat error: %v", err)
		}
	}
	if !stat.IsDir() {
		xlog.Fatalf("working directory %q is not a directory", workDir)
	}
	return
}
