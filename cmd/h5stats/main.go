// Command h5stats prints the global normalization statistics of HDF5 volumes
// and optionally stores them in the loader's stats cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"segloader/datasets"
	"segloader/db"
	"segloader/stats"
	"segloader/storage"
)

type row struct {
	path   string
	shape  []int
	bytes  int64
	voxels int
	stats  stats.Stats
	cached bool
}

func main() {
	os.Exit(run())
}

func run() int {
	internalPath := flag.String("internal_path", "raw", "raw array inside each file")
	dbPath := flag.String("db", "", "stats cache database; empty disables caching")
	jobs := flag.Int("jobs", runtime.NumCPU(), "files processed in parallel")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: h5stats [flags] FILE_OR_DIR...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	paths, err := datasets.TraversePaths(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var cache stats.Cache
	if *dbPath != "" {
		store, err := db.NewStatsStore(db.StoreConfig{DBPath: *dbPath, EnableWAL: true}, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer store.Close()
		cache = store
	}

	rows, errs := computeAll(context.Background(), paths, *internalPath, *jobs, storage.OpenHDF5, cache)
	for i, err := range errs {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", paths[i], err)
		}
	}
	printTable(os.Stdout, rows)
	if len(rows) < len(paths) {
		return 1
	}
	return 0
}

// computeAll runs compute over paths with at most jobs files in flight. Rows
// of failed files are left out; errs is indexed like paths.
func computeAll(ctx context.Context, paths []string, internalPath string, jobs int, open storage.Opener, cache stats.Cache) ([]row, []error) {
	results := make([]row, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, p := range paths {
		g.Go(func() error {
			results[i], errs[i] = compute(ctx, p, internalPath, open, cache)
			return nil
		})
	}
	g.Wait()

	var rows []row
	for i, r := range results {
		if errs[i] == nil {
			rows = append(rows, r)
		}
	}
	return rows, errs
}

func compute(ctx context.Context, path, internalPath string, open storage.Opener, cache stats.Cache) (row, error) {
	r := row{path: path}
	key, err := stats.KeyFor(path, internalPath)
	if err != nil {
		return r, err
	}
	r.bytes = key.Size

	f, err := open(path)
	if err != nil {
		return r, err
	}
	defer f.Close()
	arr, err := f.Array(internalPath)
	if err != nil {
		return r, err
	}
	r.shape = arr.Shape()
	r.voxels = 1
	for _, d := range r.shape {
		r.voxels *= d
	}

	if cache != nil {
		if st, ok, err := cache.Get(ctx, key); err == nil && ok {
			r.stats, r.cached = st, true
			return r, nil
		}
	}

	data, err := arr.ReadAll()
	if err != nil {
		return r, err
	}
	if r.stats, err = stats.Calculate(data.Data, false); err != nil {
		return r, err
	}
	if cache != nil {
		if err := cache.Put(ctx, key, r.stats); err != nil {
			return r, fmt.Errorf("store stats: %w", err)
		}
	}
	return r, nil
}

func printTable(out io.Writer, rows []row) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSHAPE\tSIZE\tVOXELS\tPMIN\tPMAX\tMEAN\tSTD\tCACHED")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%.4g\t%.4g\t%.4g\t%.4g\t%t\n",
			r.path, r.shape, humanize.Bytes(uint64(r.bytes)), humanize.Comma(int64(r.voxels)),
			r.stats.PMin, r.stats.PMax, r.stats.Mean, r.stats.Std, r.cached)
	}
	w.Flush()
}
