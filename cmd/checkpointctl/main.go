// Command checkpointctl is a thin collaborator around the dedup/restore
// packages (§6 "CLI collaborator (out of scope)"): it owns argument parsing,
// opening files, and printing results, and nothing about dedup semantics
// itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MuriData/chkpdedup/dedup"
	"github.com/MuriData/chkpdedup/internal/config"
	"github.com/MuriData/chkpdedup/internal/logx"
	"github.com/MuriData/chkpdedup/internal/manifest"
	"github.com/MuriData/chkpdedup/restore"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "checkpoint":
		runCheckpoint(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: checkpointctl checkpoint -mode=full|basic|list|tree -chunk-size=N -out-dir=<dir> [-manifest=<path>] <snapshot>...")
	fmt.Fprintln(os.Stderr, "       checkpointctl restore -mode=full|basic|list|tree -target=N -out=<path> <diff>...")
}

func parseVariant(s string) config.Variant {
	switch s {
	case "basic":
		return config.VariantBasic
	case "list":
		return config.VariantList
	case "tree":
		return config.VariantTree
	default:
		return config.VariantFull
	}
}

func newDedup(mode config.Variant, chunkSize int, log logx.Logger) dedup.Dedup {
	cfg := config.Default(chunkSize)
	cfg.Variant = mode
	mapCap := configMapCapacity(chunkSize)
	switch mode {
	case config.VariantTree:
		d, err := dedup.NewTreeDedup(cfg, mapCap, log)
		if err != nil {
			fatal(err)
		}
		return d
	case config.VariantBasic:
		d, err := dedup.NewBasicDedup(cfg, log)
		if err != nil {
			fatal(err)
		}
		return d
	case config.VariantList:
		d, err := dedup.NewListDedup(cfg, mapCap, log)
		if err != nil {
			fatal(err)
		}
		return d
	default:
		return dedup.NewFullDedup(cfg, log)
	}
}

func configMapCapacity(chunkSize int) int {
	return config.MapCapacity(chunkSize, 1<<30, 64)
}

// runCheckpoint runs one Dedup instance over a sequence of snapshot files
// (§6 "a run is the sequence of checkpoint calls against one Dedup
// instance"), writing one diff per snapshot into -out-dir and, if
// -manifest is set, a CBOR run summary alongside them (internal/manifest).
func runCheckpoint(args []string) {
	fs := newFlagSet("checkpoint")
	mode := fs.String("mode", "tree", "full|basic|list|tree")
	chunkSize := fs.Int("chunk-size", 4096, "bytes per chunk")
	rebaseline := fs.Bool("baseline", false, "force every snapshot to start a new baseline")
	outDir := fs.String("out-dir", "", "directory to write chkpt-<id>.diff files into")
	manifestPath := fs.String("manifest", "", "optional path to write a CBOR run manifest to")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) == 0 || *outDir == "" {
		printUsage()
		os.Exit(1)
	}

	l := logx.NewConsole(os.Stderr)
	cfg := config.Default(*chunkSize)
	cfg.Variant = parseVariant(*mode)
	d := newDedup(cfg.Variant, *chunkSize, l)
	run := manifest.New(cfg)
	ctx := context.Background()

	for i, path := range rest {
		data, err := os.ReadFile(path)
		if err != nil {
			fatal(err)
		}
		makeBaseline := i == 0 || *rebaseline

		// A fresh Dedup's lifecycle assigns chkpt_id = i for the i-th call in
		// this run (§3 "Lifecycle"), so the output path can be named up front.
		out := fmt.Sprintf("%s/chkpt-%d.diff", *outDir, i)
		diff, stats, err := dedup.CheckpointToFile(ctx, d, data, out, makeBaseline)
		if err != nil {
			fatal(err)
		}
		run.Append(diff.Header)
		l.Info().Str("in", path).Str("out", out).Int("bytes", len(data)).
			Int("chunks_written", stats.ChunksWritten).Int("chunks_deduped", stats.ChunksDeduped).
			Msg("checkpoint written")
	}

	if *manifestPath != "" {
		mf, err := os.Create(*manifestPath)
		if err != nil {
			fatal(err)
		}
		defer mf.Close()
		if err := manifest.Write(mf, run); err != nil {
			fatal(err)
		}
	}
}

func runRestore(args []string) {
	fs := newFlagSet("restore")
	mode := fs.String("mode", "tree", "full|basic|list|tree")
	target := fs.Uint("target", 0, "chkpt_id to restore")
	out := fs.String("out", "", "output data path")
	fs.Parse(args)
	paths := fs.Args()
	if len(paths) == 0 || *out == "" {
		printUsage()
		os.Exit(1)
	}

	data, err := restore.FromFiles(parseVariant(*mode), paths, uint32(*target))
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	log.Fatal(err)
}
