package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"colloquy/pkg/logger"
	"colloquy/pkg/store"
)

// Offline database inspector: dumps keys (and optionally records) from
// a colloquy store directory. Run against a stopped server; pebble
// allows a single writer.
func main() {
	var (
		dbPath  = flag.String("db", "", "db path (the directory passed to the server)")
		prefix  = flag.String("prefix", "", "only keys with this prefix")
		values  = flag.Bool("values", false, "print record bodies")
		pretty  = flag.Bool("pretty", false, "re-indent JSON record bodies")
		maxKeys = flag.Int("limit", 0, "stop after this many keys (0 = all)")
	)
	flag.Parse()
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "-db required")
		os.Exit(2)
	}
	logger.Init()

	storePath := filepath.Join(*dbPath, "store")
	if _, err := os.Stat(storePath); err != nil {
		// tolerate being pointed directly at the store dir
		storePath = *dbPath
	}
	if err := store.Open(storePath); err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	iter, err := store.DBIter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "iterator failed: %v\n", err)
		os.Exit(1)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		if *prefix != "" && !strings.HasPrefix(key, *prefix) {
			continue
		}
		if *values {
			body := string(iter.Value())
			if *pretty {
				var buf bytes.Buffer
				if json.Indent(&buf, iter.Value(), "", "  ") == nil {
					body = buf.String()
				}
			}
			fmt.Printf("%s\t%s\n", key, body)
		} else {
			fmt.Println(key)
		}
		n++
		if *maxKeys > 0 && n >= *maxKeys {
			break
		}
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", n)
}
