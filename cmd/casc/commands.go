package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/brecky/casc"
	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

func runInfo(ctx context.Context, g *globals, args []string) error {
	explorer, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer explorer.Close()

	var content, stored uint64
	encoding := explorer.EncodingEntries()
	for _, e := range encoding {
		content += uint64(e.Size)
	}
	index := explorer.IndexEntries()
	for _, e := range index {
		stored += uint64(e.Size)
	}
	fmt.Printf("app:      %s\n", explorer.App())
	fmt.Printf("version:  %s\n", explorer.Version())
	fmt.Printf("root:     %s entries, %s named\n",
		humanize.Comma(int64(len(explorer.RootEntries()))), humanize.Comma(int64(len(explorer.Files()))))
	fmt.Printf("encoding: %s entries, %s of content\n", humanize.Comma(int64(len(encoding))), humanize.Bytes(content))
	fmt.Printf("index:    %s blocks, %s stored\n", humanize.Comma(int64(len(index))), humanize.Bytes(stored))
	return nil
}

func runList(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	long := fs.BoolP("long", "l", false, "print the hash and header of each file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pattern := fs.Arg(0)
	if _, err := path.Match(pattern, ""); err != nil {
		return errors.WithStack(err)
	}
	explorer, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer explorer.Close()

	for _, filename := range explorer.Files() {
		if pattern != "" && !match(pattern, filename) {
			continue
		}
		if !*long {
			fmt.Println(filename)
			continue
		}
		f, err := explorer.File(casc.Name(filename))
		if err != nil {
			g.logger.Warn("cannot read header", "file", filename, "err", err)
			fmt.Printf("%016x %-8s %s\n", common.FilenameHash(filename), "-", filename)
			continue
		}
		fmt.Printf("%016x %-8s %s\n", f.Hash, f.Header, filename)
	}
	return nil
}

// match reports whether filename matches pattern, ignoring case.
func match(pattern, filename string) bool {
	ok, _ := path.Match(strings.ToLower(pattern), strings.ToLower(common.CleanPath(filename)))
	return ok
}

func runExtract(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	outputDir := fs.StringP("output", "o", "", "output directory (default <app>/<version>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("extract needs at least one pattern or name")
	}
	for _, p := range fs.Args() {
		if _, err := path.Match(p, ""); err != nil {
			return errors.WithStack(err)
		}
	}
	explorer, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer explorer.Close()

	selected := map[string]bool{}
	var filtered []string
	all := explorer.Files()
	for _, p := range fs.Args() {
		matched := false
		for _, filename := range all {
			if match(p, filename) && !selected[filename] {
				selected[filename] = true
				filtered = append(filtered, filename)
				matched = true
			}
		}
		// names missing from the root's names may still resolve by hash
		if !matched && !selected[p] && explorer.IsFileAvailable(casc.Name(p)) {
			selected[p] = true
			filtered = append(filtered, p)
		}
	}
	g.logger.Info("files selected", "matched", len(filtered), "total", len(all))

	if *outputDir == "" {
		*outputDir = filepath.Join(explorer.App(), explorer.Version())
	}
	var extracted int
	var total uint64
	for i, filename := range filtered {
		if err := ctx.Err(); err != nil {
			return err
		}
		fullname, err := outputPath(*outputDir, filename)
		if err != nil {
			g.logger.Error("cannot extract", "file", filename, "err", err)
			continue
		}
		b, err := explorer.Extract(filename)
		if err != nil {
			g.logger.Error("cannot extract", "file", filename, "err", err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fullname), 0o777); err != nil {
			return errors.WithStack(err)
		}
		if err := os.WriteFile(fullname, b, 0o666); err != nil {
			return errors.WithStack(err)
		}
		fmt.Printf("%d/%d: %s (%s)\n", i+1, len(filtered), fullname, humanize.Bytes(uint64(len(b))))
		extracted++
		total += uint64(len(b))
	}
	fmt.Printf("extracted %d out of %d files, %s\n", extracted, len(filtered), humanize.Bytes(total))
	if extracted != len(filtered) {
		return errors.Errorf("%d files could not be extracted", len(filtered)-extracted)
	}
	return nil
}

// outputPath places filename under dir. Names come from root manifests and
// listfiles, those leaving dir are rejected.
func outputPath(dir, filename string) (string, error) {
	rel := filepath.FromSlash(common.CleanPath(filename))
	if !filepath.IsLocal(rel) {
		return "", errors.Errorf("%q escapes the output directory", filename)
	}
	return filepath.Join(dir, rel), nil
}

func runHash(_ context.Context, _ *globals, args []string) error {
	if len(args) == 0 {
		return errors.New("hash needs at least one path")
	}
	for _, p := range args {
		fmt.Printf("%016x %s\n", common.FilenameHash(p), p)
	}
	return nil
}

func runBLTE(_ context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("blte", flag.ContinueOnError)
	encode := fs.StringP("encode", "e", "", "encode instead of decode, with mode N, Z, 4 or F")
	chunkSize := fs.IntP("chunk-size", "c", 0, "chunk size when encoding, 0 for a single chunk")
	output := fs.StringP("output", "o", "", "output file, - for stdout (default <file>_blte_decoded or <file>.blte)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("blte needs at least one file")
	}
	if *output != "" && fs.NArg() > 1 {
		return errors.New("-o needs a single input file")
	}
	var mode blte.Mode
	if *encode != "" {
		if len(*encode) != 1 {
			return errors.Errorf("invalid mode %q", *encode)
		}
		mode = blte.Mode((*encode)[0])
	}
	for _, name := range fs.Args() {
		in, err := os.ReadFile(name)
		if err != nil {
			return errors.WithStack(err)
		}
		var out []byte
		suffix := "_blte_decoded"
		if *encode != "" {
			suffix = ".blte"
			out, err = blte.Encode(in, mode, *chunkSize)
		} else {
			out, err = decodeBLTE(in, g.cfg.VerifyChecksums)
		}
		if err != nil {
			return errors.Wrap(err, name)
		}
		target := *output
		if target == "" {
			target = name + suffix
		}
		if target == "-" {
			if _, err := os.Stdout.Write(out); err != nil {
				return errors.WithStack(err)
			}
			continue
		}
		if err := os.WriteFile(target, out, 0o666); err != nil {
			return errors.WithStack(err)
		}
		g.logger.Info("blte", "in", name, "out", target, "size", humanize.Bytes(uint64(len(out))))
	}
	return nil
}

// decodeBLTE streams in through the chunk reader.
func decodeBLTE(in []byte, verify bool) ([]byte, error) {
	if verify {
		return blte.Decode(in, blte.UnknownSize, blte.VerifyChecksums(true))
	}
	r, err := blte.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
