package pubmed

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotFile is the JSONL file name under a knowledge directory.
const SnapshotFile = "pubmed.jsonl"

// BootstrapResult summarizes the state of a knowledge snapshot after a
// bootstrap request.
type BootstrapResult struct {
	Query     string `json:"query"`
	Count     int    `json:"count"`
	Requested int    `json:"requested"`
	Fetched   int    `json:"fetched"`
	File      string `json:"file"`
	OutDir    string `json:"out_dir"`
}

// Bootstrap ensures the snapshot directory exists and reports how many
// articles the snapshot already holds against the requested total. Actual
// article ingestion is an offline step; the endpoint only accounts for it.
func Bootstrap(query string, total int, outDir string) (*BootstrapResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	path := filepath.Join(outDir, SnapshotFile)

	count := 0
	if f, err := os.Open(path); err == nil {
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) != "" {
				count++
			}
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("count snapshot lines: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}

	fetched := total
	if count < fetched {
		fetched = count
	}
	return &BootstrapResult{
		Query:     query,
		Count:     count,
		Requested: total,
		Fetched:   fetched,
		File:      path,
		OutDir:    outDir,
	}, nil
}
