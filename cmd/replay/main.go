// Command replay runs a scenario file through the alert engine on a fake
// clock and prints the decision trace, for auditing scoring and lifecycle
// decisions offline.
//
// Usage:
//
//	go run ./cmd/replay -scenario cmd/replay/testdata/koramangala.json
//	go run ./cmd/replay -scenario scenario.json -format json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/floodwatch-service/internal/observability"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	path := fs.String("scenario", "", "path to the scenario JSON file")
	format := fs.String("format", "text", "output format: text or json")
	logLevel := fs.String("log-level", "warn", "engine log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		fs.Usage()
		return fmt.Errorf("missing required flag: -scenario")
	}

	s, err := LoadScenario(*path)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(observability.LoggerConfig{Level: *logLevel, Format: "text"})
	logger = slog.New(logger.Handler()).With("component", "replay")

	trace, err := Replay(context.Background(), s, logger)
	if err != nil {
		return err
	}

	switch strings.ToLower(*format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	case "text":
		printTrace(out, trace)
		return nil
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func printTrace(w io.Writer, t *Trace) {
	for _, st := range t.Steps {
		fmt.Fprintf(w, "@%s (%s)\n", st.At, st.Time.Format("15:04:05"))
		for _, e := range st.Invalid {
			fmt.Fprintf(w, "  invalid report: %s\n", e)
		}
		for _, d := range st.Decisions {
			fmt.Fprintf(w, "  cluster %v -> %s score=%d area=%q alert=%s\n    %s\n",
				d.ReportIDs, d.Verdict, d.Score.Total, d.AreaName, d.AlertID, d.Score.Explanation)
		}
		for _, v := range st.Votes {
			if !v.Accepted {
				fmt.Fprintf(w, "  vote %s by %s on %s rejected\n", v.Vote, v.UserID, v.AlertID)
				continue
			}
			fmt.Fprintf(w, "  vote %s by %s on %s -> road %s active=%t\n", v.Vote, v.UserID, v.AlertID, v.RoadState, v.Active)
		}
		for _, id := range st.Expired {
			fmt.Fprintf(w, "  expired %s\n", id)
		}
		for _, m := range st.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", m.Purpose, strings.ReplaceAll(m.Text, "\n", "\n    "))
		}
	}
	fmt.Fprintln(w, "final alerts:")
	for _, a := range t.Alerts {
		fmt.Fprintf(w, "  %s %s severity=%s road=%s active=%t confidence=%d reports=%d\n",
			a.ID, a.AreaName, a.Severity, a.RoadState, a.IsActive, a.ConfidenceScore, a.ReportCount)
	}
}
