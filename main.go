package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kvasir-vcs/kvasir/internal/metrics"
	"github.com/kvasir-vcs/kvasir/internal/platform"
	"github.com/kvasir-vcs/kvasir/internal/version"
	"github.com/kvasir-vcs/kvasir/pkg/archive"
	"github.com/kvasir-vcs/kvasir/pkg/config"
	"github.com/kvasir-vcs/kvasir/pkg/delta"
	"github.com/kvasir-vcs/kvasir/pkg/merkle"
	"github.com/kvasir-vcs/kvasir/pkg/object"
	"github.com/kvasir-vcs/kvasir/pkg/pack"
	"github.com/kvasir-vcs/kvasir/pkg/store"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "kvasir",
		Short:   "kvasir - content-addressable object packing engine",
		Version: version.Version,
	}

	root.AddCommand(newImportCmd(), newPackCmd(), newUnpackCmd(), newVerifyCmd(),
		newDiffCmd(), newPatchCmd(), newWatchCmd())
	return root
}

func newDiffCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "diff <old> <new> --out <patch>",
		Short: "Compute a standalone binary patch between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("out file is required")
			}
			return runDiff(args[0], args[1], outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Destination patch file")
	return cmd
}

func newPatchCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "patch <base> <patch> --out <file>",
		Short: "Apply a standalone binary patch to a base file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("out file is required")
			}
			return runPatch(args[0], args[1], outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Destination file")
	return cmd
}

func newImportCmd() *cobra.Command {
	var stateDir string
	var typeName string

	cmd := &cobra.Command{
		Use:   "import --state-dir <dir> <files...>",
		Short: "Store files as objects in the local store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			return runImport(stateDir, typeName, args)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where the object store lives")
	cmd.Flags().StringVar(&typeName, "type", "blob", "Object type to store files as (commit, tree, blob, tag)")
	return cmd
}

func newPackCmd() *cobra.Command {
	var stateDir string
	var outPath string
	var cold bool

	cmd := &cobra.Command{
		Use:   "pack --state-dir <dir> --out <file>",
		Short: "Assemble every stored object into a pack stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			if outPath == "" {
				return fmt.Errorf("out file is required")
			}
			return runPack(stateDir, outPath, cold)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where the object store lives")
	cmd.Flags().StringVar(&outPath, "out", "", "Destination pack file")
	cmd.Flags().BoolVar(&cold, "cold", false, "xz-wrap the pack for cold-tier placement")
	return cmd
}

func newUnpackCmd() *cobra.Command {
	var stateDir string

	cmd := &cobra.Command{
		Use:   "unpack --state-dir <dir> <pack>",
		Short: "Decode a pack stream and materialize its objects into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			return runUnpack(stateDir, args[0])
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where the object store lives")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <pack>",
		Short: "Check a pack's trailer checksum and print its manifest root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(args[0])
		},
	}
	return cmd
}

func newWatchCmd() *cobra.Command {
	var stateDir string
	var watchDir string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch --state-dir <dir> --dir <dir>",
		Short: "Watch a directory and import changed files as blob objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			if watchDir == "" {
				watchDir = "."
			}
			return runWatch(stateDir, watchDir, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where the object store lives")
	cmd.Flags().StringVar(&watchDir, "dir", ".", "Directory to watch for changes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus endpoint (disabled when empty)")
	return cmd
}

func openStore(stateDir string) (*store.Store, *config.PackConfig, error) {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}

	st, err := store.Open(stateDir, cfg.HashAlgo)
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func runImport(stateDir, typeName string, paths []string) error {
	t, err := object.ParseType(typeName)
	if err != nil {
		return err
	}

	st, _, err := openStore(stateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, path := range paths {
		data, err := os.ReadFile(platform.LongPathname(path))
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		hash, err := st.Put(t, data)
		if err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		metrics.ObjectsImported.Inc()
		log.Printf("[import] %s %s (%d bytes)", hash, path, len(data))
	}
	return nil
}

// loadEngine resolves the configured delta engine. Pack streams always
// use the native format; this selection covers standalone patches only.
func loadEngine() (delta.Engine, error) {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return delta.NewEngine(cfg.Engine)
}

func runDiff(oldPath, newPath, outPath string) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}

	base, err := os.ReadFile(platform.LongPathname(oldPath))
	if err != nil {
		return fmt.Errorf("read %s: %w", oldPath, err)
	}
	target, err := os.ReadFile(platform.LongPathname(newPath))
	if err != nil {
		return fmt.Errorf("read %s: %w", newPath, err)
	}

	patch, err := engine.Diff(base, target)
	if err != nil {
		return fmt.Errorf("compute patch: %w", err)
	}
	if err := os.WriteFile(outPath, patch, 0o644); err != nil {
		return fmt.Errorf("write patch: %w", err)
	}

	stats := delta.ComputeStats(base, target, patch)
	log.Printf("[diff] %s: %d -> %d bytes (%.1f%% saved)",
		engine.Name(), stats.TargetSize, stats.DeltaSize, stats.SavingsRate*100)
	return nil
}

func runPatch(basePath, patchPath, outPath string) error {
	engine, err := loadEngine()
	if err != nil {
		return err
	}

	base, err := os.ReadFile(platform.LongPathname(basePath))
	if err != nil {
		return fmt.Errorf("read %s: %w", basePath, err)
	}
	patch, err := os.ReadFile(platform.LongPathname(patchPath))
	if err != nil {
		return fmt.Errorf("read %s: %w", patchPath, err)
	}

	target, err := engine.Patch(base, patch)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	if err := os.WriteFile(outPath, target, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	log.Printf("[patch] %s: restored %d bytes to %s", engine.Name(), len(target), outPath)
	return nil
}

func runPack(stateDir, outPath string, cold bool) error {
	st, cfg, err := openStore(stateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	objects, err := st.List()
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("store is empty, nothing to pack")
	}

	start := time.Now()
	writer := pack.NewWriter(pack.Options{
		WindowSize:          cfg.WindowSize,
		MaxDeltaDepth:       cfg.MaxDeltaDepth,
		MinDeltaSize:        cfg.MinDeltaSize,
		SimilarityThreshold: cfg.SimilarityThreshold,
	})
	result, err := writer.Build(objects)
	if err != nil {
		return fmt.Errorf("assemble pack: %w", err)
	}
	metrics.ObservePack(start)
	metrics.AddPacked(result.FullCount, result.DeltaCount)

	rawBytes := 0
	for _, obj := range objects {
		rawBytes += len(obj.Data)
	}
	metrics.SetPackSavedRatio(rawBytes, len(result.Data))

	manifest, err := merkle.BuildManifest(result.Objects)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}

	out := result.Data
	if cold || cfg.ColdCompression {
		if out, err = archive.Wrap(out); err != nil {
			return fmt.Errorf("cold-wrap pack: %w", err)
		}
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("write pack: %w", err)
	}

	log.Printf("[pack] %d objects (%d full, %d delta), %d -> %d bytes, checksum %s, manifest root %x",
		len(result.Objects), result.FullCount, result.DeltaCount, rawBytes, len(out), result.Checksum, manifest.Root())
	return nil
}

func runUnpack(stateDir, packPath string) error {
	st, cfg, err := openStore(stateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := os.ReadFile(packPath)
	if err != nil {
		return fmt.Errorf("read pack: %w", err)
	}
	data, err := archive.Unwrap(raw)
	if err != nil {
		return fmt.Errorf("unwrap pack: %w", err)
	}

	start := time.Now()
	parser := pack.NewParser(pack.ParserOptions{
		MaxDeltaDepth: cfg.MaxDeltaDepth,
		Source:        st,
	})
	result, err := parser.Parse(data)
	metrics.CountParse(err)
	if err != nil {
		return fmt.Errorf("parse pack: %w", err)
	}
	metrics.ObserveParse(start)

	if err := result.Materialize(st); err != nil {
		return err
	}

	log.Printf("[unpack] %d objects materialized, checksum %s", len(result.Objects), result.Checksum)
	return nil
}

func runVerify(packPath string) error {
	raw, err := os.ReadFile(packPath)
	if err != nil {
		return fmt.Errorf("read pack: %w", err)
	}
	data, err := archive.Unwrap(raw)
	if err != nil {
		return fmt.Errorf("unwrap pack: %w", err)
	}

	if err := pack.Verify(data); err != nil {
		return err
	}

	parser := pack.NewParser(pack.ParserOptions{})
	result, err := parser.Parse(data)
	metrics.CountParse(err)
	if err != nil {
		return fmt.Errorf("parse pack: %w", err)
	}

	hashes := make([]object.Hash, 0, len(result.Objects))
	for _, obj := range result.Objects {
		hashes = append(hashes, obj.Hash)
	}
	manifest, err := merkle.BuildManifest(hashes)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}

	log.Printf("[verify] ok: %d objects, checksum %s, manifest root %x",
		len(result.Objects), result.Checksum, manifest.Root())
	return nil
}

func runWatch(stateDir, watchDir, metricsAddr string) error {
	st, _, err := openStore(stateDir)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddr, log.Default()); err != nil {
				log.Printf("[metrics] endpoint stopped: %v", err)
			}
		}()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	metrics.SetUp(true)
	defer metrics.SetUp(false)
	log.Printf("[watch] watching %s", watchDir)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[watch] shutting down")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := platform.LongPathname(event.Name)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("[watch] read %s: %v", event.Name, err)
				continue
			}
			hash, err := st.Put(object.TypeBlob, data)
			if err != nil {
				log.Printf("[watch] store %s: %v", event.Name, err)
				continue
			}
			metrics.ObjectsImported.Inc()
			log.Printf("[watch] %s %s (%d bytes)", hash, filepath.Base(event.Name), len(data))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watch] watcher error: %v", err)
		}
	}
}
