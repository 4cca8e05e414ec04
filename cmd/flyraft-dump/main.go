/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// flyraft-dump inspects a FlyRaft data directory: the durable term/vote
// state, the log records (with checksum verification), and the snapshot
// anchor. Run with -i for an interactive inspection shell.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/chzyer/readline"

	"flyraft/internal/config"
	"flyraft/internal/storage"
)

var (
	dataDir     = flag.String("data", "", "FlyRaft data directory to inspect")
	configFile  = flag.String("config", "", "configuration file naming the data directory")
	interactive = flag.Bool("i", false, "interactive inspection shell")
	maxPreview  = flag.Int("preview", 32, "max command bytes shown per log record")
)

func main() {
	flag.Parse()

	dir, err := resolveDataDir(*dataDir, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flyraft-dump: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.Open(dir, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flyraft-dump: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *interactive {
		if err := runShell(store, dir); err != nil {
			fmt.Fprintf(os.Stderr, "flyraft-dump: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dumpState(store)
	fmt.Println()
	dumpLog(store, *maxPreview)
	fmt.Println()
	dumpSnapshot(store, dir)
}

// resolveDataDir picks the data directory from the flag or, failing
// that, from a configuration file.
func resolveDataDir(dir, cfgPath string) (string, error) {
	if dir == "" && cfgPath != "" {
		mgr := config.NewManager()
		if err := mgr.LoadFromFile(cfgPath); err != nil {
			return "", err
		}
		dir = mgr.Get().DataDir
	}
	if dir == "" {
		return "", fmt.Errorf("no data directory: pass -data or -config")
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return "", fmt.Errorf("data directory %q does not exist", dir)
	}
	return dir, nil
}

func dumpState(store *storage.Store) {
	fmt.Println("== state ==")
	term, votedFor, err := store.LoadState()
	if err != nil {
		fmt.Printf("  %v\n", err)
		return
	}
	fmt.Printf("  current_term: %d\n", term)
	if votedFor == storage.NoVote {
		fmt.Printf("  voted_for:    none\n")
	} else {
		fmt.Printf("  voted_for:    node %d\n", votedFor)
	}
}

func dumpLog(store *storage.Store, preview int) {
	fmt.Println("== log ==")
	baseIndex, baseTerm, count, err := store.GetLogInfo()
	if err != nil {
		fmt.Printf("  %v\n", err)
		return
	}
	fmt.Printf("  base_index: %d  base_term: %d  records: %d\n", baseIndex, baseTerm, count)

	err = store.IterateLog(func(rec storage.LogRecord) error {
		fmt.Printf("  [%6d] term=%-4d kind=%-7s %4d bytes  %s\n",
			rec.Index, rec.Term, entryKindName(rec.Kind), len(rec.Command),
			formatCommand(rec.Command, preview))
		return nil
	})
	if err != nil {
		fmt.Printf("  %v\n", err)
	}
}

func dumpSnapshot(store *storage.Store, dir string) {
	fmt.Println("== snapshot ==")
	if !storage.SnapshotExists(dir) {
		fmt.Println("  no snapshot")
		return
	}
	meta, err := store.LoadSnapshotMeta()
	if err != nil {
		fmt.Printf("  %v\n", err)
		return
	}
	size := int64(0)
	if st, err := os.Stat(filepath.Join(dir, storage.SnapshotFile)); err == nil {
		size = st.Size()
	}
	fmt.Printf("  last_index: %d  last_term: %d  file: %s\n",
		meta.LastIndex, meta.LastTerm, formatFileSize(size))
}

// runShell drives the interactive inspection loop.
func runShell(store *storage.Store, dir string) error {
	rl, err := readline.New("flyraft> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("Inspecting %s (type 'help' for commands)\n", dir)
	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "state":
			dumpState(store)
		case "log":
			dumpLog(store, *maxPreview)
		case "snapshot", "snap":
			dumpSnapshot(store, dir)
		case "entry":
			if len(fields) != 2 {
				fmt.Println("usage: entry <index>")
				continue
			}
			index, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				fmt.Println("usage: entry <index>")
				continue
			}
			showEntry(store, index)
		case "help":
			fmt.Println("commands: state, log, snapshot, entry <index>, quit")
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unknown command %q (try 'help')\n", fields[0])
		}
	}
}

func showEntry(store *storage.Store, index uint64) {
	found := false
	err := store.IterateLog(func(rec storage.LogRecord) error {
		if rec.Index != index {
			return nil
		}
		found = true
		fmt.Printf("  index:   %d\n", rec.Index)
		fmt.Printf("  term:    %d\n", rec.Term)
		fmt.Printf("  kind:    %s\n", entryKindName(rec.Kind))
		fmt.Printf("  command: %d bytes  %s\n", len(rec.Command), formatCommand(rec.Command, 256))
		return nil
	})
	if err != nil {
		fmt.Printf("  %v\n", err)
		return
	}
	if !found {
		fmt.Printf("  no record with index %d\n", index)
	}
}

// entryKindName names a persisted entry kind.
func entryKindName(kind uint32) string {
	switch kind {
	case 0:
		return "COMMAND"
	case 1:
		return "CONFIG"
	case 2:
		return "NOOP"
	default:
		return "UNKNOWN"
	}
}

// formatCommand renders a printable preview of a command payload.
func formatCommand(cmd []byte, max int) string {
	if len(cmd) == 0 {
		return "-"
	}
	truncated := false
	if len(cmd) > max {
		cmd = cmd[:max]
		truncated = true
	}
	printable := true
	for _, b := range cmd {
		if b > unicode.MaxASCII || (!unicode.IsPrint(rune(b)) && b != ' ') {
			printable = false
			break
		}
	}
	var out string
	if printable {
		out = fmt.Sprintf("%q", cmd)
	} else {
		out = fmt.Sprintf("0x%x", cmd)
	}
	if truncated {
		out += "..."
	}
	return out
}

// formatFileSize renders a byte count in human-readable units.
func formatFileSize(size int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
