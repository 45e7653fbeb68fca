// Command trajectory-report renders the rig trajectory stored in an
// irtrack detection log.
//
// Usage:
//
//	go run ./cmd/tools/trajectory-report -db detections.db [flags]
//
// Flags:
//
//	-db       Detection log path (required)
//	-session  Session ID to plot (default: every frame)
//	-limit    Maximum frames read (default: no limit)
//	-png      Output PNG path (default: trajectory.png)
//	-html     Output HTML path (default: none)
//	-list     Print the sessions and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/irtrack/internal/optical/report"
	"github.com/banshee-data/irtrack/internal/optical/storage/sqlite"
)

type options struct {
	DBPath  string
	Session string
	Limit   int
	PNG     string
	HTML    string
	List    bool
}

func main() {
	var o options
	flag.StringVar(&o.DBPath, "db", "", "Detection log path (required)")
	flag.StringVar(&o.Session, "session", "", "Session ID to plot (default: every frame)")
	flag.IntVar(&o.Limit, "limit", 0, "Maximum frames read (0 = no limit)")
	flag.StringVar(&o.PNG, "png", "trajectory.png", "Output PNG path (empty to skip)")
	flag.StringVar(&o.HTML, "html", "", "Output HTML path (empty to skip)")
	flag.BoolVar(&o.List, "list", false, "Print the sessions and exit")
	flag.Parse()

	if o.DBPath == "" {
		log.Fatal("-db is required")
	}
	if err := run(context.Background(), o, os.Stdout); err != nil {
		log.Fatalf("trajectory-report: %v", err)
	}
}

func run(ctx context.Context, o options, out io.Writer) error {
	if _, err := os.Stat(o.DBPath); err != nil {
		return fmt.Errorf("detection log: %w", err)
	}
	store, err := sqlite.Open(o.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if o.List {
		return listSessions(ctx, store, out)
	}

	samples, err := report.LoadSamples(ctx, store, o.Session, o.Limit)
	if err != nil {
		return err
	}
	title := "Rig trajectory"
	if o.Session != "" {
		title += " " + o.Session
	}

	if o.PNG != "" {
		if err := report.SavePNG(o.PNG, title, samples); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s (%d frames)\n", o.PNG, len(samples))
	}
	if o.HTML != "" {
		f, err := os.Create(o.HTML)
		if err != nil {
			return err
		}
		if err := report.WriteHTML(f, title, samples); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s (%d frames)\n", o.HTML, len(samples))
	}
	return nil
}

func listSessions(ctx context.Context, store *sqlite.Store, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tFRAMES\tVALID")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			s.ID, s.Started.UTC().Format(time.RFC3339), s.Last.Sub(s.Started).Round(time.Millisecond), s.Frames, s.ValidFrames)
	}
	return tw.Flush()
}
