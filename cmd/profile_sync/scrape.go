package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/jobs"
	"github.com/jonathan/profile-sync/internal/observability"
	"github.com/jonathan/profile-sync/internal/scraper"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape one LinkedIn profile interactively",
	Long: `Sign in, scrape the profile at --url and print its text.

When LinkedIn asks to confirm the sign-in, approve the notification on your phone and press
Enter; the same browser keeps polling instead of signing in again.`,
	RunE: runScrape,
}

var (
	scrapeURL        string
	scrapeEmail      string
	scrapePassword   string
	scrapePoll       time.Duration
	scrapeRetryPoll  time.Duration
	scrapeMaxRetries int
	scrapeOutFile    string
	scrapeParse      bool
)

func init() {
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "LinkedIn profile URL (required)")
	scrapeCmd.Flags().StringVar(&scrapeEmail, "email", "", "LinkedIn e-mail (overrides LinkedinLogin)")
	scrapeCmd.Flags().StringVar(&scrapePassword, "password", "", "LinkedIn password (overrides LinkedinPassword)")
	scrapeCmd.Flags().DurationVar(&scrapePoll, "poll", 0, "Login poll budget for the first attempt (default LOGIN_POLL_BUDGET)")
	scrapeCmd.Flags().DurationVar(&scrapeRetryPoll, "retry-poll", 0, "Poll budget after each approval (default RETRY_POLL_BUDGET)")
	scrapeCmd.Flags().IntVar(&scrapeMaxRetries, "max-retries", 3, "How many times to resume after a security challenge")
	scrapeCmd.Flags().StringVarP(&scrapeOutFile, "out", "o", "", "Write the result to this file instead of stdout")
	scrapeCmd.Flags().BoolVar(&scrapeParse, "parse", false, "Parse the profile into JSON with Gemini (needs GEMINI_API_KEY)")

	_ = scrapeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	if scrapeMaxRetries < 0 {
		return fmt.Errorf("--max-retries must not be negative")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{parse: scrapeParse})
	if err != nil {
		return err
	}
	defer a.Close()

	req := jobs.Request{
		SessionKey: "cli-" + uuid.NewString(),
		ProfileURL: scrapeURL,
		PollBudget: scrapePoll,
	}
	if scrapeEmail != "" || scrapePassword != "" {
		req.Credentials = &scraper.Credentials{Email: scrapeEmail, Password: scrapePassword}
	}

	printer := observability.NewPrinter(cmd.ErrOrStderr())
	loop := retryLoop{
		runner:     a.runner,
		in:         bufio.NewReader(cmd.InOrStdin()),
		printer:    printer,
		maxRetries: scrapeMaxRetries,
		retryPoll:  scrapeRetryPoll,
		log:        logger,
	}
	out, err := loop.run(ctx, req)
	if err != nil {
		return err
	}

	printer.PrintScrapeResult(out.Result)
	if out.ParseError != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: profile parsing failed: %s\n", out.ParseError)
	}
	if err := printer.PrintProfile(out.Profile); err != nil {
		logger.Warn("could not summarize parsed profile", zap.Error(err))
	}
	return writeOutput(cmd.OutOrStdout(), scrapeOutFile, out)
}

// scrapeRunner is the part of jobs.Runner the interactive loop drives.
type scrapeRunner interface {
	Scrape(ctx context.Context, req jobs.Request) (*jobs.Outcome, error)
	Resume(ctx context.Context, sessionKey, profileURL string, pollBudget time.Duration) (*jobs.Outcome, error)
	Release(sessionKey string)
}

// retryLoop runs a scrape and, on each security challenge, waits for Enter and resumes the
// parked session.
type retryLoop struct {
	runner     scrapeRunner
	in         *bufio.Reader
	printer    *observability.Printer
	maxRetries int
	retryPoll  time.Duration
	log        *zap.Logger
}

func (l retryLoop) run(ctx context.Context, req jobs.Request) (*jobs.Outcome, error) {
	defer l.runner.Release(req.SessionKey)

	out, err := l.runner.Scrape(ctx, req)
	for attempt := 1; scraper.IsRetryable(err) && attempt <= l.maxRetries; attempt++ {
		message := ""
		var se *scraper.Error
		if errors.As(err, &se) {
			message = se.Message
		}
		l.printer.PrintChallenge(message, attempt, l.maxRetries)

		if err := l.waitForEnter(ctx); err != nil {
			return nil, err
		}
		l.log.Debug("resuming after approval", zap.Int("attempt", attempt))
		out, err = l.runner.Resume(ctx, req.SessionKey, req.ProfileURL, l.retryPoll)
	}
	if err != nil {
		if scraper.IsRetryable(err) {
			return nil, fmt.Errorf("sign-in still not approved after %d retries: %w", l.maxRetries, err)
		}
		return nil, err
	}
	return out, nil
}

func (l retryLoop) waitForEnter(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := l.in.ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = errors.New("input closed while waiting for approval")
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type outputDocument struct {
	ProfileURL string          `json:"profile_url"`
	Strategy   string          `json:"strategy"`
	Chars      int             `json:"chars"`
	Sections   []string        `json:"sections"`
	Text       string          `json:"text"`
	Profile    json.RawMessage `json:"profile,omitempty"`
}

// writeOutput prints the text to stdout, or writes a JSON document to path.
func writeOutput(stdout io.Writer, path string, out *jobs.Outcome) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, out.Text)
		return err
	}

	data, err := json.MarshalIndent(outputDocument{
		ProfileURL: scrapeURL,
		Strategy:   string(out.Strategy),
		Chars:      out.Chars,
		Sections:   out.Sections,
		Text:       out.Text,
		Profile:    out.Profile,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}
