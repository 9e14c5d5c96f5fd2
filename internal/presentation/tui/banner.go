package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the onestep banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   ___  _ __   ___  ___| |_ ___ _ __  ", "#818cf8"},
		{"  / _ \\| '_ \\ / _ \\/ __| __/ _ \\ '_ \\ ", "#a78bfa"},
		{" | (_) | | | |  __/\\__ \\ ||  __/ |_) |", "#c084fc"},
		{"  \\___/|_| |_|\\___||___/\\__\\___| .__/ ", "#e879f9"},
		{"                               |_|    ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
