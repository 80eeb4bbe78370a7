// ofs-top shows live sensor status from a running filament monitor.
//
// Usage:
//
//	ofs-top -addr http://printer-sensor:8080 -interval 1s
//
// Keys: r recalibrate, c clear pause request, q quit.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "monitor base URL")
	interval := flag.Duration("interval", time.Second, "poll interval")
	flag.Parse()

	m := newModel(newStatusClient(*addr), *interval)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ofs-top: %v\n", err)
		os.Exit(1)
	}
}
