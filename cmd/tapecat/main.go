// tapecat pretty-prints cache record files. Streamed (SSE) response bodies
// are reassembled into a single completion object before printing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tapecache/tapecache/cache"
	"github.com/tapecache/tapecache/config"
	"github.com/tapecache/tapecache/pkg/replay"
)

var (
	cacheDirFlag string
	listFlag     bool
)

func init() {
	flag.StringVar(&cacheDirFlag, "cache-dir", config.DefaultCacheDir(), "Cache record directory")
	flag.BoolVar(&listFlag, "list", false, "List indexed records instead of printing files")
}

func main() {
	flag.Parse()

	if listFlag {
		if err := listRecords(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tapecat [-list] <record.json> ...")
		os.Exit(1)
	}
	for i, path := range flag.Args() {
		if i > 0 {
			fmt.Println("\n" + divider("") + "\n")
		}
		if err := printRecord(path); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
}

func listRecords() error {
	index, err := cache.OpenRecordIndex(filepath.Join(cacheDirFlag, "records.db"))
	if err != nil {
		return err
	}
	defer index.Close()
	entries, err := index.All()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s  %s  %3d  %s  %s/%s\n",
			entry.StoredAt.Format(time.DateTime), entry.Fingerprint,
			entry.Status, entry.Method, entry.TargetURL, entry.Path)
	}
	return nil
}

func printRecord(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var record cache.CacheRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	fmt.Println("Record:", path)
	fmt.Println(divider("REQUEST BODY"))
	fmt.Println(pretty(record.Request.Body))

	body := record.Response.Body
	if replay.IsStream(body) {
		fmt.Println(divider("RESPONSE BODY (from stream)"))
		out, err := json.MarshalIndent(replay.Reassemble(body), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Println(divider("RESPONSE BODY"))
		fmt.Println(pretty(body))
	}
	return nil
}

// pretty re-indents a JSON body, or returns it as-is if it is not JSON.
func pretty(body string) string {
	var parsed any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return body
	}
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return body
	}
	return string(out)
}

func divider(title string) string {
	line := "============================================================"
	if title == "" {
		return line
	}
	return line + "\n" + title + "\n" + line
}
