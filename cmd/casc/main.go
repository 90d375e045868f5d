/*
casc explores CASC storages from the command-line.
Usage:

	casc [global flags] info
	casc [global flags] list [-l] [pattern]
	casc [global flags] extract [-o <output-dir>] <pattern|name>...
	casc hash <path>...
	casc blte [-e <mode>] [-c <chunk-size>] [-o <output>] <file>...

Global flags select the storage, either a local install (--dir) or a CDN
mirror (--mirror with --build-config and --cdn-config, or --versions and
--region). They override the YAML file named by --config or CASC_CONFIG.
Examples:

	casc --dir "/Applications/Warcraft III" list "*.mdx"
	casc --dir /games/wow --listfile listfile.csv extract -o out "interface/icons/*"
	casc blte data.blte
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/brecky/casc"
	"github.com/brecky/casc/config"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

const usage = `usage: casc [global flags] <command> [flags] [args]

commands:
  info      print the build version and storage statistics
  list      list the known file paths, optionally matching a pattern
  extract   extract files matching patterns or names
  hash      print the filename hash of paths
  blte      decode or encode BLTE files

global flags:
`

type command func(ctx context.Context, g *globals, args []string) error

var commands = map[string]command{
	"info":    runInfo,
	"list":    runList,
	"extract": runExtract,
	"hash":    runHash,
	"blte":    runBLTE,
}

type globals struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	verbose, err := run(ctx, os.Args[1:])
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) (bool, error) {
	fs := flag.NewFlagSet("casc", flag.ContinueOnError)
	fs.SetInterspersed(false)
	configPath := fs.String("config", "", "YAML config file (default $"+config.EnvVar+")")
	installDir := fs.String("dir", "", "game install directory")
	mirrorDir := fs.String("mirror", "", "CDN mirror directory")
	buildConfig := fs.String("build-config", "", "mirror build config hash")
	cdnConfig := fs.String("cdn-config", "", "mirror cdn config hash")
	versions := fs.String("versions", "", "saved versions file resolving the mirror build")
	region := fs.String("region", "", "region row of the versions file")
	locale := fs.String("locale", "", "locale of localised files, e.g. enUS")
	listfile := fs.String("listfile", "", "file listing storage paths, one per line")
	verify := fs.Bool("verify", false, "verify BLTE chunk checksums")
	verbose := fs.BoolP("verbose", "v", false, "verbose")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return false, errors.New("missing command")
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return false, errors.Errorf("unknown command %q", fs.Arg(0))
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return *verbose, err
	}
	overrides := map[string]func(){
		"dir":          func() { cfg.InstallDir = *installDir },
		"mirror":       func() { cfg.Mirror.Dir = *mirrorDir },
		"build-config": func() { cfg.Mirror.BuildConfig = *buildConfig },
		"cdn-config":   func() { cfg.Mirror.CdnConfig = *cdnConfig },
		"versions":     func() { cfg.Mirror.VersionsFile = *versions },
		"region":       func() { cfg.Mirror.Region = *region },
		"locale":       func() { cfg.Locale = *locale },
		"listfile":     func() { cfg.Listfile = *listfile },
		"verify":       func() { cfg.VerifyChecksums = *verify },
		"verbose":      func() { cfg.Verbose = *verbose },
	}
	for name, apply := range overrides {
		if fs.Changed(name) {
			apply()
		}
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	g := &globals{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	return cfg.Verbose, cmd(ctx, g, fs.Args()[1:])
}

// open opens the storage the config selects.
func (g *globals) open(ctx context.Context) (*casc.Explorer, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := g.cfg.Options(g.logger)
	if err != nil {
		return nil, err
	}
	if g.cfg.InstallDir != "" {
		g.logger.Info("opening local install", "dir", g.cfg.InstallDir)
		return casc.NewLocalExplorer(ctx, g.cfg.InstallDir, opts...)
	}
	if err := g.cfg.ResolveMirror(); err != nil {
		return nil, err
	}
	g.logger.Info("opening mirror", "dir", g.cfg.Mirror.Dir,
		"build_config", g.cfg.Mirror.BuildConfig, "cdn_config", g.cfg.Mirror.CdnConfig)
	return casc.NewMirrorExplorer(ctx, g.cfg.Mirror.Dir, g.cfg.Mirror.BuildConfig, g.cfg.Mirror.CdnConfig, opts...)
}
