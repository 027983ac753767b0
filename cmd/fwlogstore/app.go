package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v2"

	"github.com/opnsense-tools/fwlogstore/internal/reportexport"
	"github.com/opnsense-tools/fwlogstore/internal/storeconfig"
	"github.com/opnsense-tools/fwlogstore/predicate"
	"github.com/opnsense-tools/fwlogstore/record"
	"github.com/opnsense-tools/fwlogstore/store"
)

// Shared flag definitions, one var per flag, reused across subcommands —
// the same de-duplication shape as the teacher's cli.App flag vars.
var (
	fileFlag = &cli.StringFlag{
		Name:     "file",
		Usage:    "Path to the firewall log file to open",
		Required: true,
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a storeconfig TOML file (if omitted, or for tunables the file does not set, the defaults are used)",
	}
	startFlag = &cli.IntFlag{
		Name:  "start",
		Usage: "First record position to return",
		Value: 0,
	}
	countFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "Number of records to return",
		Value: 50,
	}
	nFlag = &cli.IntFlag{
		Name:  "n",
		Usage: "Number of most recent records to return",
		Value: 20,
	}
	conditionFlag = &cli.StringSliceFlag{
		Name:  "condition",
		Usage: `A filter condition as "field:op:value", optionally prefixed with "!" to negate (e.g. "action:eq:block", "!dir:eq:out", "src:in_cidr:10.0.0.0/8")`,
	}
	connectiveFlag = &cli.StringSliceFlag{
		Name:  "connective",
		Usage: `AND or OR joining consecutive --condition flags; one fewer connective than conditions`,
	}
	timeStartFlag = &cli.StringFlag{
		Name:  "time-start",
		Usage: "Start of the time window (RFC3339, \"2006-01-02 15:04:05\", or \"2006-01-02\")",
	}
	timeEndFlag = &cli.StringFlag{
		Name:  "time-end",
		Usage: "End of the time window",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of matched records to print",
		Value: 100,
	}
	heatmapFlag = &cli.StringFlag{
		Name:  "heatmap",
		Usage: "Path to write an HTML day/hour density heatmap of the matches (omit to skip)",
	}
	compactFlag = &cli.BoolFlag{
		Name:  "compact",
		Usage: "Output compact JSON (no pretty printing)",
	}
	plainFlag = &cli.BoolFlag{
		Name:  "plain",
		Usage: "Output plain text instead of JSON",
	}
)

// loadConfig returns storeconfig.Default() unless --config names a file,
// in which case it is decoded over that default.
func loadConfig(c *cli.Context) (storeconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return storeconfig.Default(), nil
	}
	return storeconfig.Load(path)
}

// openStore opens the store named by --file, reporting index-build
// progress to stderr.
func openStore(c *cli.Context) (*store.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	progress := func(processed, total int64) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\rindexing: %d/%d bytes", processed, total)
		}
	}

	s, err := store.Open(c.String("file"), cfg, progress, nil)
	fmt.Fprintln(os.Stderr)
	return s, err
}

// recordView is the CLI's JSON-friendly projection of a record.Record.
type recordView struct {
	Timestamp string            `json:"timestamp"`
	Synthetic bool              `json:"synthetic,omitempty"`
	Action    string            `json:"action"`
	Interface string            `json:"interface"`
	Dir       string            `json:"dir"`
	Src       string            `json:"src,omitempty"`
	Dst       string            `json:"dst,omitempty"`
	SrcPort   string            `json:"src_port,omitempty"`
	DstPort   string            `json:"dst_port,omitempty"`
	Proto     string            `json:"proto,omitempty"`
	RawLine   string            `json:"raw_line"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func toView(r record.Record) recordView {
	return recordView{
		Timestamp: r.Timestamp.Instant.Format("2006-01-02T15:04:05"),
		Synthetic: r.Timestamp.Synthetic,
		Action:    r.Field("action"),
		Interface: r.Field("interface_display"),
		Dir:       r.Field("dir"),
		Src:       r.Field("src"),
		Dst:       r.Field("dst"),
		SrcPort:   r.Field("srcport"),
		DstPort:   r.Field("dstport"),
		Proto:     r.Field("protoname"),
		RawLine:   r.RawLine,
	}
}

func (v recordView) plainLine() string {
	return fmt.Sprintf("%s %-5s %-8s %-4s %s:%s -> %s:%s (%s)",
		v.Timestamp, v.Action, v.Interface, v.Dir, v.Src, v.SrcPort, v.Dst, v.DstPort, v.Proto)
}

// printRecords writes records as plain text or JSON depending on the
// compact/plain flags, the teacher's own output-mode toggle.
func printRecords(c *cli.Context, records []record.Record) error {
	views := make([]recordView, len(records))
	for i, r := range records {
		views[i] = toView(r)
	}

	if c.Bool("plain") {
		for _, v := range views {
			fmt.Println(v.plainLine())
		}
		return nil
	}

	var (
		out []byte
		err error
	)
	if c.Bool("compact") {
		out, err = json.Marshal(views)
	} else {
		out, err = json.MarshalIndent(views, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// parseCondition parses "field:op:value", with an optional leading "!"
// meaning Negate.
func parseCondition(s string) (predicate.ConditionSpec, error) {
	negate := false
	if strings.HasPrefix(s, "!") {
		negate = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return predicate.ConditionSpec{}, fmt.Errorf(`condition %q must be "field:op:value"`, s)
	}
	return predicate.ConditionSpec{
		Field:  parts[0],
		Op:     predicate.Op(parts[1]),
		Value:  parts[2],
		Negate: negate,
	}, nil
}

func buildSpec(c *cli.Context) (predicate.Spec, error) {
	var spec predicate.Spec
	for _, raw := range c.StringSlice("condition") {
		cond, err := parseCondition(raw)
		if err != nil {
			return predicate.Spec{}, err
		}
		spec.Conditions = append(spec.Conditions, cond)
	}
	for _, raw := range c.StringSlice("connective") {
		spec.Connectives = append(spec.Connectives, predicate.Connective(strings.ToUpper(raw)))
	}
	spec.TimeStart = c.String("time-start")
	spec.TimeEnd = c.String("time-end")
	return spec, nil
}

func handleOpen(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	info := s.MemoryInfo()
	fmt.Printf("opened %s: %d lines, %d records\n", c.String("file"), info.TotalLines, info.TotalRecords)
	return nil
}

func handlePage(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Get(c.Int("start"), c.Int("count"))
	if err != nil {
		return err
	}
	return printRecords(c, records)
}

func handleTail(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Tail(c.Int("n"))
	if err != nil {
		return err
	}
	return printRecords(c, records)
}

func handleFilter(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	spec, err := buildSpec(c)
	if err != nil {
		return err
	}

	progress := func(completed, total int) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\rfiltering: %d/%d chunks", completed, total)
		}
	}

	n, err := s.ApplyFilter(spec, progress, nil)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "matched %d records (%d duplicates)\n", n, s.DuplicateCount())

	limit := c.Int("limit")
	if limit > n {
		limit = n
	}
	records, err := s.Get(0, limit)
	if err != nil {
		return err
	}

	if heatmapPath := c.String("heatmap"); heatmapPath != "" {
		all, err := s.Get(0, n)
		if err != nil {
			return err
		}
		if err := reportexport.PlotHourlyHeatmap(all, heatmapPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote heatmap to %s\n", heatmapPath)
	}

	return printRecords(c, records)
}

func handleMeminfo(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()

	info := s.MemoryInfo()
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// App is the fwlogstore CLI, mirroring the teacher's cli.App: a
// top-level App with per-subcommand flag lists built from the shared
// flag vars above and one handler function per subcommand.
var App = &cli.App{
	Name:  "fwlogstore",
	Usage: "Explore an OPNsense/pfSense firewall filterlog file",
	Commands: []*cli.Command{
		{
			Name:   "open",
			Usage:  "Build the line index and report basic counts",
			Flags:  []cli.Flag{fileFlag, configFlag},
			Action: handleOpen,
		},
		{
			Name:   "page",
			Usage:  "Return a page of records in file order",
			Flags:  []cli.Flag{fileFlag, configFlag, startFlag, countFlag, compactFlag, plainFlag},
			Action: handlePage,
		},
		{
			Name:   "tail",
			Usage:  "Return the most recent records",
			Flags:  []cli.Flag{fileFlag, configFlag, nFlag, compactFlag, plainFlag},
			Action: handleTail,
		},
		{
			Name:  "filter",
			Usage: "Apply a predicate and return matching records",
			Flags: []cli.Flag{
				fileFlag, configFlag,
				conditionFlag, connectiveFlag, timeStartFlag, timeEndFlag,
				limitFlag, heatmapFlag, compactFlag, plainFlag,
			},
			Action: handleFilter,
		},
		{
			Name:   "meminfo",
			Usage:  "Report chunk cache and record-count statistics",
			Flags:  []cli.Flag{fileFlag, configFlag},
			Action: handleMeminfo,
		},
	},
}
