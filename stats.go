package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/example/tile_itc/core"
	"github.com/sugawarayuuta/sonnet"
)

// PrintStats writes a human-readable report.
func PrintStats(w io.Writer, stats *SimulationStats) {
	if stats == nil || stats.Global == nil {
		fmt.Fprintln(w, "No stats available")
		return
	}
	g := stats.Global
	fmt.Fprintln(w, "=== Global Statistics ===")
	fmt.Fprintf(w, "Config Hash: %s\n", g.ConfigHash)
	fmt.Fprintf(w, "Ticks: %d\n", g.Ticks)
	fmt.Fprintf(w, "Tiles: %d, Links: %d (open at both ends: %d)\n", g.Tiles, g.Links, g.OpenLinks)
	fmt.Fprintf(w, "Windows: spawned=%d executed=%d declined=%d aborted=%d skipped=%d\n",
		g.Spawned, g.Executed, g.Declined, g.Aborted, g.Skipped)
	fmt.Fprintf(w, "Execution Rate: %.2f%%\n", g.ExecutionRate)
	fmt.Fprintf(w, "Locks: granted=%d refused=%d\n", g.LocksGranted, g.LocksRefused)
	fmt.Fprintf(w, "Link Resets: %d\n", g.Resets)
	fmt.Fprintf(w, "Packets Shipped: %d, Atoms Sent: %d\n", g.PacketsShipped, g.AtomsSent)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Tile Statistics ===")
	for _, ts := range stats.PerTile {
		if ts == nil {
			continue
		}
		st := ts.Stats
		fmt.Fprintf(w, "Tile %d (r%d c%d): Executed=%d, Declined=%d, Aborted=%d, MaxWaiting=%d\n",
			ts.ID, ts.Row, ts.Col, st.Executed, st.Declined, st.Aborted, st.MaxWaiting)
		dirs := make([]string, 0, len(st.Links))
		for d := range st.Links {
			dirs = append(dirs, d)
		}
		sort.Slice(dirs, func(i, j int) bool { return dirOrder(dirs[i]) < dirOrder(dirs[j]) })
		for _, d := range dirs {
			ls := st.Links[d]
			fmt.Fprintf(w, "  %-2s: Opens=%d, Resets=%d, Granted=%d, Refused=%d, Shipped=%d, Received=%d",
				d, ls.Opens, ls.Resets, ls.LocksGranted, ls.LocksRefused, ls.PacketsShipped, ls.PacketsReceived)
			if ls.LastCause != "" {
				fmt.Fprintf(w, ", LastCause=%q", ls.LastCause)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Cache Consistency ===")
	if len(stats.Mismatches) == 0 {
		fmt.Fprintln(w, "All open links consistent")
	}
	for _, m := range stats.Mismatches {
		fmt.Fprintln(w, m.String())
	}
}

// WriteStatsJSON writes stats as a single JSON document.
func WriteStatsJSON(w io.Writer, stats *SimulationStats) error {
	data, err := sonnet.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func dirOrder(name string) int {
	d, err := core.ParseDir(name)
	if err != nil {
		return int(core.DirCount)
	}
	return int(d)
}
