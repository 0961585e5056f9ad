package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/BearBump/TrackIntake/config"
	"github.com/BearBump/TrackIntake/internal/barcode"
	"github.com/BearBump/TrackIntake/internal/csvcodec"
	"github.com/BearBump/TrackIntake/internal/records"
	"github.com/BearBump/TrackIntake/internal/services/export"
	"github.com/BearBump/TrackIntake/internal/station"
	"github.com/pkg/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	cancel()
	exitFn(code)
}

var exitFn = os.Exit

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  intake-cli scan [--config path] [code ...]     (reads stdin when no codes given)")
	fmt.Fprintln(w, "  intake-cli validate <code>")
	fmt.Fprintln(w, "  intake-cli list [--config path] [--sort key] [--desc] [--q text] [--page n] [--per-page n] [--json]")
	fmt.Fprintln(w, "  intake-cli delete [--config path] <id> [id ...]")
	fmt.Fprintln(w, "  intake-cli csv [--config path] [--out file]")
	fmt.Fprintln(w, "  intake-cli export [--config path] [--download]")
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "scan":
		return handleScan(ctx, args[2:], stdin, stdout, stderr)
	case "validate":
		return handleValidate(args[2:], stdout, stderr)
	case "list":
		return handleList(ctx, args[2:], stdout, stderr)
	case "delete":
		return handleDelete(ctx, args[2:], stdout, stderr)
	case "csv":
		return handleCSV(ctx, args[2:], stdout, stderr)
	case "export":
		return handleExport(ctx, args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", envOrDefault("configPath", "config.yaml"), "path to config yaml")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openStation(ctx context.Context, cfgPath string, stderr io.Writer) (*station.Station, bool) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return nil, false
	}
	st, err := station.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "station:", err)
		return nil, false
	}
	return st, true
}

func handleScan(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, ok := openStation(ctx, *cfgPath, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	codes := fs.Args()
	if len(codes) == 0 {
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				codes = append(codes, line)
			}
		}
		if err := sc.Err(); err != nil {
			fmt.Fprintln(stderr, "read stdin:", err)
			return 1
		}
	}

	rejected := 0
	for _, c := range codes {
		rec, err := st.Intake.Scan(ctx, c)
		if err != nil {
			rejected++
			fmt.Fprintf(stdout, "REJECT %s: %s\n", c, err.Error())
			continue
		}
		fmt.Fprintf(stdout, "OK id=%s partner=%s %s\n", rec.ID, rec.DeliveryPartnerID, rec.RawCode)
	}
	fmt.Fprintf(stdout, "accepted=%d rejected=%d total=%d\n", len(codes)-rejected, rejected, st.Store.Len())
	if rejected > 0 {
		return 1
	}
	return 0
}

func handleValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "validate requires <code>")
		return 2
	}

	parsed, err := barcode.Validate(fs.Arg(0))
	if err != nil {
		var ve *barcode.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(stdout, "invalid rule=%d %s\n", ve.Rule, ve.Message)
		} else {
			fmt.Fprintln(stderr, err.Error())
		}
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(parsed)
	return 0
}

func handleList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	sortKey := fs.String("sort", "", "sort key (id, scannedAt, deliveryPartnerId, ...)")
	desc := fs.Bool("desc", false, "descending order")
	q := fs.String("q", "", "search text")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", records.DefaultPerPage, "rows per page")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, ok := openStation(ctx, *cfgPath, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	p := st.Intake.List(records.ListOptions{SortKey: *sortKey, Desc: *desc, Search: *q, Page: *page, PerPage: *perPage})
	if *jsonOut {
		_ = json.NewEncoder(stdout).Encode(p)
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCANNED\tPARTNER\tSHIPMENT\tCODE")
	for _, r := range p.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.ScannedAt, r.DeliveryPartnerID, r.ShipmentIDDVS, r.RawCode)
	}
	_ = tw.Flush()
	fmt.Fprintf(stdout, "page %d/%d, %d records\n", p.Page, p.TotalPages, p.Total)
	return 0
}

func handleDelete(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "delete requires at least one <id>")
		return 2
	}

	st, ok := openStation(ctx, *cfgPath, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	removed, remaining := st.Intake.Remove(ctx, fs.Args())
	fmt.Fprintf(stdout, "removed=%d remaining=%d\n", removed, remaining)
	return 0
}

func handleCSV(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("csv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	out := fs.String("out", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, ok := openStation(ctx, *cfgPath, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	doc := csvcodec.Document(st.Store.Snapshot())
	if *out == "" {
		_, _ = stdout.Write(doc)
		return 0
	}
	if err := os.WriteFile(*out, doc, 0o600); err != nil {
		fmt.Fprintln(stderr, "write output:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return 0
}

func handleExport(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := configFlag(fs)
	download := fs.Bool("download", false, "save locally when the server is unreachable")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, ok := openStation(ctx, *cfgPath, stderr)
	if !ok {
		return 1
	}
	defer st.Close()

	out, err := st.Export.Export(ctx)
	if err != nil && out.Kind == export.OutcomeRejected {
		fmt.Fprintln(stderr, out.Message)
		return 1
	}
	printOutcome(stdout, out)

	// без --download ответ на вопрос о локальном сохранении отрицательный
	if out.Kind == export.OutcomeAwaitingDownload {
		out, _ = st.Export.ResolveDownload(ctx, *download)
		printOutcome(stdout, out)
	}
	switch out.Kind {
	case export.OutcomeUploaded, export.OutcomeSaved:
		return 0
	default:
		return 1
	}
}

func printOutcome(w io.Writer, out export.Outcome) {
	fmt.Fprintf(w, "%s: %s", out.Kind, out.Message)
	if out.Filename != "" {
		fmt.Fprintf(w, " file=%s", out.Filename)
	}
	if out.Path != "" {
		fmt.Fprintf(w, " path=%s", out.Path)
	}
	if out.RecordCount > 0 {
		fmt.Fprintf(w, " records=%d", out.RecordCount)
	}
	fmt.Fprintln(w)
}
