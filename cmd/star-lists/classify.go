package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kevinmichaelchen/star-lists/internal/batch"
	"github.com/kevinmichaelchen/star-lists/internal/config"
	"github.com/kevinmichaelchen/star-lists/internal/llm"
	"github.com/kevinmichaelchen/star-lists/internal/organizer"
	"github.com/kevinmichaelchen/star-lists/internal/reconcile"
	"github.com/kevinmichaelchen/star-lists/internal/surrealdb"
	"github.com/kevinmichaelchen/star-lists/internal/taxonomy"
)

const reviewExamples = 5

type classifyFlags struct {
	concurrency   int
	intervalMS    int
	minConfidence float64
	locale        string
	limit         int
	yes           bool
	verbose       bool
}

func classifyCmd() *cobra.Command {
	var f classifyFlags

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "File uncategorized repos into lists using the LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			flags := cmd.Flags()
			if flags.Changed("concurrency") {
				cfg.BatchConcurrency = f.concurrency
			}
			if flags.Changed("interval") {
				cfg.BatchRequestIntervalMS = f.intervalMS
			}
			if flags.Changed("min-confidence") {
				cfg.AutoApplyMinConfidence = f.minConfidence
			}
			if flags.Changed("locale") {
				cfg.ListLocale = f.locale
			}
			return runClassify(cmd.InOrStdin(), cfg, f)
		},
	}
	cmd.Flags().IntVar(&f.concurrency, "concurrency", batch.DefaultConcurrency, "Classification calls in flight at once (1-10)")
	cmd.Flags().IntVar(&f.intervalMS, "interval", int(batch.DefaultRequestInterval/time.Millisecond), "Milliseconds a worker waits between requests")
	cmd.Flags().Float64Var(&f.minConfidence, "min-confidence", 0, "Confidence needed to file a match without review")
	cmd.Flags().StringVar(&f.locale, "locale", "en", "Language for new list names (en, zh)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Classify at most this many repos (0 = all)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Skip confirmation and accept every proposal")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging")
	return cmd
}

func runClassify(stdin io.Reader, cfg *config.Config, f classifyFlags) error {
	logger := newLogger(os.Stderr, f.verbose)
	in := bufio.NewReader(stdin)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := surrealdb.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(context.Background()) }()

	repos, err := db.GetUncategorizedRepos(ctx)
	if err != nil {
		return err
	}
	if f.limit > 0 && len(repos) > f.limit {
		repos = repos[:f.limit]
	}
	if len(repos) == 0 {
		fmt.Println("Nothing to classify: every repo is in a list")
		return nil
	}

	locale := taxonomy.ParseLocale(cfg.ListLocale)
	bcfg := batch.FromMillis(cfg.BatchConcurrency, cfg.BatchRequestIntervalMS)
	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel,
		llm.WithTimeout(time.Duration(cfg.LLMTimeoutSeconds)*time.Second),
		llm.WithLocale(locale))
	session := organizer.NewSession(db,
		batch.New(bcfg, client, batch.WithLogger(logger)),
		reconcile.New(
			reconcile.WithLocale(locale),
			reconcile.WithMinConfidence(cfg.AutoApplyMinConfidence),
			reconcile.WithLogger(logger)),
		organizer.WithLogger(logger))

	fmt.Printf("Classify %d repos with %s (concurrency %d, interval %s)?",
		len(repos), cfg.LLMModel, bcfg.Concurrency, bcfg.RequestInterval)
	if !f.yes {
		ok, err := confirm(in)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted")
			return nil
		}
	} else {
		fmt.Println()
	}

	bar := newProgress(os.Stderr, len(repos))
	if err := session.Start(ctx, repos, bar.update); err != nil {
		return err
	}
	bar.finish()
	// Later writes must not be cut short by a second interrupt.
	stop()

	if session.Phase() == organizer.PhaseReview {
		if err := review(in, session, f.yes); err != nil {
			return err
		}
		if err := session.Commit(context.Background()); err != nil {
			return err
		}
	}

	sum, err := session.Summary()
	if err != nil {
		return err
	}
	printSummary(os.Stdout, sum)
	if !sum.OK() {
		return fmt.Errorf("%d writes failed", len(sum.Errors))
	}
	return nil
}

func confirm(in *bufio.Reader) (bool, error) {
	fmt.Print(" [y/N] ")
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func review(in *bufio.Reader, session *organizer.Session, acceptDefaults bool) error {
	props, err := session.Proposals()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println(renderProposals(props))
	if acceptDefaults {
		return nil
	}

	fmt.Print("Numbers to toggle (e.g. 2,4), Enter to keep: ")
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading selection: %w", err)
	}
	toggles, err := parseSelection(line, len(props))
	if err != nil {
		return err
	}
	for _, i := range toggles {
		if err := session.SetAccepted(i, !props[i].Accepted); err != nil {
			return err
		}
	}
	return nil
}

func renderProposals(props []*reconcile.Proposal) string {
	rows := make([][]string, 0, len(props))
	for i, p := range props {
		mark := " "
		if p.Accepted {
			mark = "x"
		}
		name := p.Name
		switch p.Kind {
		case reconcile.KindUnclassified:
			name += " (unclassified)"
		case reconcile.KindFailed:
			name += " (failed)"
		}
		examples := strings.Join(p.Examples(reviewExamples), ", ")
		if len(p.Repos) > reviewExamples {
			examples += ", ..."
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), "[" + mark + "]", name, strconv.Itoa(len(p.Repos)), examples})
	}
	return renderTable([]string{"#", "Create", "List", "Repos", "Examples"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft})
}

// parseSelection turns "2, 4" into zero-based indexes below n.
func parseSelection(line string, n int) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' }) {
		k, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", field)
		}
		if k < 1 || k > n {
			return nil, fmt.Errorf("selection %d out of range 1-%d", k, n)
		}
		if !seen[k-1] {
			seen[k-1] = true
			out = append(out, k-1)
		}
	}
	return out, nil
}

func printSummary(w io.Writer, sum reconcile.Summary) {
	status := "complete"
	if sum.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(w, "\nClassification %s: %d/%d repos processed\n", status, sum.Processed, sum.Total)
	fmt.Fprintf(w, "  Auto-filed:   %d\n", len(sum.AutoApplied))
	fmt.Fprintf(w, "  Lists made:   %d\n", len(sum.Created))
	fmt.Fprintf(w, "  Filed:        %d\n", sum.Filed)
	fmt.Fprintf(w, "  Left out:     %d\n", sum.Declined)
	fmt.Fprintf(w, "  Failed:       %d\n", len(sum.Failures))

	if len(sum.Created) > 0 {
		rows := make([][]string, 0, len(sum.Created))
		for _, c := range sum.Created {
			rows = append(rows, []string{c.Name, c.Color})
		}
		fmt.Fprintln(w, renderTable([]string{"New list", "Color"}, rows, nil))
	}
	if len(sum.Failures) > 0 {
		rows := make([][]string, 0, len(sum.Failures))
		var hints []string
		for _, f := range sum.Failures {
			reason := "no suggestion"
			if f.Err != nil {
				reason = f.Err.Error()
			}
			rows = append(rows, []string{f.Repo.FullName, reason})
			if h := failureHint(f.Err); h != "" && !slices.Contains(hints, h) {
				hints = append(hints, h)
			}
		}
		fmt.Fprintln(w, renderTable([]string{"Repo", "Error"}, rows, nil))
		// Hints stay off the table so they are never wrapped.
		for _, h := range hints {
			fmt.Fprintf(w, "  Hint: %s\n", h)
		}
	}
	for _, e := range sum.Errors {
		fmt.Fprintf(w, "  WARN: %v\n", e)
	}
}

// failureHint is the remediation for a malformed response, if err is one.
func failureHint(err error) string {
	var mr *llm.MalformedResponseError
	if errors.As(err, &mr) {
		return mr.Hint()
	}
	return ""
}

// progress renders batch progress as a bar on a terminal and as plain lines
// otherwise.
type progress struct {
	w     io.Writer
	total int
	bar   *progressbar.ProgressBar
}

func newProgress(w *os.File, total int) *progress {
	p := &progress{w: w, total: total}
	fd := w.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("classifying"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish())
	}
	return p
}

func (p *progress) update(pr batch.Progress) {
	if p.bar != nil {
		p.bar.Describe(truncate(pr.ActiveDescription(), 40))
		_ = p.bar.Set(pr.Completed)
		return
	}
	if pr.Completed%10 == 0 || pr.Completed == pr.Total {
		fmt.Fprintf(p.w, "  Classified %d/%d\n", pr.Completed, pr.Total)
	}
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
