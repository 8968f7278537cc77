// tape2curl converts cache record files into curl commands that replay the
// recorded requests. Without file arguments it processes every record in the
// cache directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tapecache/tapecache/cache"
	"github.com/tapecache/tapecache/config"
	"github.com/tapecache/tapecache/pkg/replay"
)

var (
	cacheDirFlag string
	outputFlag   string
)

func init() {
	flag.StringVar(&cacheDirFlag, "cache-dir", config.DefaultCacheDir(), "Cache record directory")
	flag.StringVar(&outputFlag, "o", "", "Output file (default: stdout)")
}

func main() {
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		var err error
		paths, err = findRecords(cacheDirFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No record files found")
		os.Exit(1)
	}

	out := os.Stdout
	if outputFlag != "" {
		f, err := os.Create(outputFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	for _, path := range paths {
		command, err := convert(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "# From: %s\n%s\n\n", path, command)
	}
}

func convert(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var record cache.CacheRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return "", err
	}
	return replay.CurlCommand(record.Request), nil
}

// findRecords returns the record files in the two-level shard layout.
func findRecords(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "??", "*.json"))
}
