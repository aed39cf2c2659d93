// Package diag is the developer console: a small command set for poking the
// controller by hand and reading its counters.
package diag

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ibeckermayer/reelsort/internal/app"
	"github.com/ibeckermayer/reelsort/internal/collector"
)

// Target is the controller surface the console drives.
type Target interface {
	CollectNow(ctx context.Context) (collector.ScanResult, error)
	FullCollect(ctx context.Context) (collector.Summary, error)
	Sort(ctx context.Context, v app.Variant) (*app.SortResult, error)
	Status(ctx context.Context) app.Status
	Health(ctx context.Context) (app.Health, error)
	Reset(ctx context.Context) error
	CancelCollection() bool
	Dump(ctx context.Context) (app.DumpPaths, error)
}

var _ Target = (*app.Controller)(nil)

// ErrUnknown is returned for commands the console does not know.
var ErrUnknown = errors.New("unknown command")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type command struct {
	usage string
	help  string
	// slow commands run in the background in the REPL so cancel can reach
	// them.
	slow bool
	run  func(s *Service, ctx context.Context, args []string) (string, error)
}

var commands = map[string]command{
	"collect-now":  {usage: "collect-now", help: "scan the whole page once", run: (*Service).collectNow},
	"full-collect": {usage: "full-collect", help: "scroll until no new reels appear", slow: true, run: (*Service).fullCollect},
	"test-sort":    {usage: "test-sort [key] [all|seen]", help: "sort the feed (default: views seen)", slow: true, run: (*Service).testSort},
	"status":       {usage: "status", help: "show session state", run: (*Service).status},
	"health":       {usage: "health", help: "compare tracked slots with the live page", run: (*Service).health},
	"reset":        {usage: "reset", help: "restore the page and forget collected reels", run: (*Service).reset},
	"cancel":       {usage: "cancel", help: "stop a running collection", run: (*Service).cancel},
	"dump":         {usage: "dump", help: "save the page and the collection for replay", run: (*Service).dump},
}

// Service executes console commands against a Target.
type Service struct {
	target Target
	log    *slog.Logger
}

// New creates a Service.
func New(t Target, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{target: t, log: logger.With("component", "diag")}
}

// Commands lists the command names, sorted.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Exec runs one command line and returns its rendered output.
func (s *Service) Exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	if fields[0] == "help" {
		return help(), nil
	}
	cmd, ok := commands[fields[0]]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknown, fields[0])
	}
	s.log.Debug("exec", "cmd", fields[0], "args", fields[1:])
	return cmd.run(s, ctx, fields[1:])
}

// Run reads commands from in until EOF, "quit" or ctx ends. Slow commands
// run in the background; their output is written when they finish.
func (s *Service) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	var (
		wg    sync.WaitGroup
		outMu sync.Mutex
	)
	write := func(text string, err error) {
		outMu.Lock()
		defer outMu.Unlock()
		if err != nil {
			fmt.Fprintln(out, errStyle.Render("error: "+err.Error()))
			return
		}
		if text != "" {
			fmt.Fprintln(out, text)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "quit" || line == "exit" {
				return nil
			}
			name, _, _ := strings.Cut(line, " ")
			if cmd, ok := commands[name]; ok && cmd.slow {
				wg.Add(1)
				go func() {
					defer wg.Done()
					write(s.Exec(ctx, line))
				}()
				continue
			}
			write(s.Exec(ctx, line))
		}
	}
}

func help() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("commands") + "\n")
	for _, n := range Commands() {
		c := commands[n]
		fmt.Fprintf(&sb, "  %-28s %s\n", c.usage, c.help)
	}
	sb.WriteString("  quit\n")
	return sb.String()
}

// table renders aligned key/value rows under a title.
func table(title string, rows ...string) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	for i := 0; i+1 < len(rows); i += 2 {
		sb.WriteString("\n" + keyStyle.Render(rows[i]) + rows[i+1])
	}
	return sb.String()
}

func count(n int) string { return humanize.Comma(int64(n)) }

func (s *Service) collectNow(ctx context.Context, _ []string) (string, error) {
	res, err := s.target.CollectNow(ctx)
	if err != nil {
		return "", err
	}
	return table("collect-now",
		"candidates", count(res.Candidates),
		"upserted", count(res.Upserted),
		"new", count(res.New),
		"dropped", count(res.Dropped),
		"anchors", count(res.Discover.Anchors),
		"strategies", fmt.Sprintf("ancestor %d, keyword %d, transform %d, filtered %d",
			res.Discover.ByAncestor, res.Discover.ByKeyword, res.Discover.ByTransform, res.Discover.Filtered),
	), nil
}

func (s *Service) fullCollect(ctx context.Context, _ []string) (string, error) {
	sum, err := s.target.FullCollect(ctx)
	if err != nil {
		return "", err
	}
	return summary("full-collect", sum), nil
}

func summary(title string, sum collector.Summary) string {
	return table(title,
		"state", sum.State.String(),
		"rounds", count(sum.Rounds),
		"items", count(sum.Items),
		"new", count(sum.New),
		"timed out", fmt.Sprint(sum.TimedOut),
		"elapsed", sum.Elapsed.Round(time.Millisecond).String(),
	)
}

func (s *Service) testSort(ctx context.Context, args []string) (string, error) {
	spec := "views"
	if len(args) > 0 {
		spec = args[0]
	}
	if len(args) > 1 {
		spec += ":" + args[1]
	}
	v, err := app.ParseVariant(spec)
	if err != nil {
		return "", err
	}
	res, err := s.target.Sort(ctx, v)
	if err != nil {
		return "", err
	}
	out := table("test-sort "+v.Command(),
		"sorted", count(res.Sorted),
		"moved", count(res.Moved),
		"items", count(res.Items),
		"followers", humanize.Comma(res.Followers),
	)
	var sb strings.Builder
	sb.WriteString(out)
	for _, a := range res.Plan.Assignments {
		fmt.Fprintf(&sb, "\n  #%-3d %-14s %10s views %8s likes  <- %s",
			a.Rank, a.Item.ID, humanize.Comma(a.Item.Views), humanize.Comma(a.Item.Likes), a.Slot.ID)
	}
	return sb.String(), nil
}

func (s *Service) status(ctx context.Context, _ []string) (string, error) {
	st := s.target.Status(ctx)
	session := st.Session
	if session == "" {
		session = "none"
	}
	sortingText := "off"
	if st.Sorting {
		sortingText = fmt.Sprintf("%s/%s on %d slots", st.PlanKey, st.PlanScope, st.Slots)
	}
	remaining := "unlimited"
	if st.Remaining >= 0 {
		remaining = count(st.Remaining)
	}
	lastSort := "never"
	if !st.LastSort.IsZero() {
		lastSort = humanize.Time(st.LastSort)
	}
	return table("status",
		"url", st.URL,
		"feed", fmt.Sprint(st.Feed),
		"session", session,
		"items", count(st.Items),
		"collector", fmt.Sprintf("%s (round %d, stable %d)", st.Collector, st.Rounds, st.Stable),
		"sorting", sortingText,
		"last sort", lastSort,
		"filter", orDefault(st.Filter, "all"),
		"free sorts", remaining,
	), nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (s *Service) health(ctx context.Context, _ []string) (string, error) {
	h, err := s.target.Health(ctx)
	if err != nil {
		return "", err
	}
	observers := "n/a"
	if h.Observers >= 0 {
		observers = count(h.Observers)
	}
	return table("health",
		"tracked", fmt.Sprintf("%d (%d live)", h.Tracked, h.Live),
		"observers", observers,
		"candidates", count(h.Candidates),
		"items", count(h.Items),
		"collector", h.Collector,
		"restored", humanize.Comma(h.Guard.Restored),
		"failed", humanize.Comma(h.Guard.Failed),
		"reapplied", humanize.Comma(h.Guard.Reapplied),
		"restyled", humanize.Comma(h.Guard.Restyled),
		"dropped", humanize.Comma(h.Guard.Dropped),
		"extractors", strings.Join(h.Strategies, " > "),
	), nil
}

func (s *Service) reset(ctx context.Context, _ []string) (string, error) {
	if err := s.target.Reset(ctx); err != nil {
		return "", err
	}
	return "reset done", nil
}

func (s *Service) cancel(context.Context, []string) (string, error) {
	if s.target.CancelCollection() {
		return "collection cancelled", nil
	}
	return "no collection running", nil
}

func (s *Service) dump(ctx context.Context, _ []string) (string, error) {
	paths, err := s.target.Dump(ctx)
	if err != nil {
		return "", err
	}
	return table("dump",
		"snapshot", paths.Snapshot,
		"collection", orDefault(paths.Collection, "(empty)"),
	), nil
}
