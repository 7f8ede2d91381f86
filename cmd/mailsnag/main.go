// Command mailsnag downloads email attachments matching configured filters
// from Gmail or IMAP mailboxes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsnag/internal/config"
	"github.com/nhle/mailsnag/internal/history"
	"github.com/nhle/mailsnag/internal/run"
	"github.com/nhle/mailsnag/internal/source"
	"github.com/nhle/mailsnag/internal/source/gmail"
	"github.com/nhle/mailsnag/internal/source/imap"
	"github.com/nhle/mailsnag/internal/vault"
)

var (
	version = "dev"

	configFlag  string
	daysFlag    int
	verboseFlag bool
	limitFlag   int
	runFlag     string
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

var rootCmd = &cobra.Command{
	Use:   "mailsnag",
	Short: "Download email attachments matching configured filters",
	Long: `mailsnag searches each configured mailbox account for recent messages
matching the account's filter sets and saves their attachments to a local
directory, one subdirectory per account.

Accounts are processed independently: a failing account is reported and
skipped, and the run continues with the next one.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

var authCmd = &cobra.Command{
	Use:   "auth <account>",
	Short: "Authorize an account and store its credentials",
	Long: `auth runs the interactive OAuth authorization flow for one account and
stores the resulting token bundle in the encrypted credential vault.

Run this once per account before the first download, and again whenever a
run reports that the account's token has expired.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAuth,
}

var historyCmd = &cobra.Command{
	Use:           "history",
	Short:         "Show recent download runs",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHistory,
}

var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Write a starter configuration file",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInit,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "config.json", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log progress to stderr")
	rootCmd.Flags().IntVarP(&daysFlag, "days", "d", 0, "Search window in days (overrides default_days)")

	historyCmd.Flags().IntVar(&limitFlag, "limit", 10, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&runFlag, "run", "", "Show per-account results for one run ID")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

// logger returns a stderr logger when verbose output is requested, nil
// otherwise.
func logger() *log.Logger {
	if !verboseFlag {
		return nil
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// openVault opens the credential vault at the configured directory.
func openVault(cfg *config.Config, opts ...vault.Option) (*vault.Vault, error) {
	credDir, err := cfg.CredentialsDir()
	if err != nil {
		return nil, err
	}
	return vault.New(credDir, opts...)
}

// opener builds the mailbox backend for one account.
func opener(cfg *config.Config) run.Opener {
	return func(ctx context.Context, acct config.Account, rec vault.Record) (source.Mailbox, error) {
		if acct.Provider == config.ProviderIMAP {
			return imap.New(acct.Server, rec, logger()), nil
		}
		return gmail.New(ctx, rec, logger())
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	v, err := openVault(cfg, vault.WithLogger(logger()))
	if err != nil {
		return err
	}

	days := cfg.DefaultDays
	if daysFlag > 0 {
		days = daysFlag
	}

	runner := &run.Runner{
		Vault:       v,
		Open:        opener(cfg),
		DownloadDir: cfg.DownloadDir(),
		Logger:      logger(),
	}

	summary, runErr := runner.Run(ctx, cfg.Accounts, days)
	fmt.Print(run.Render(*summary))

	recordHistory(*summary)

	if runErr != nil {
		return exitError{code: 130}
	}
	if summary.Failed() > 0 {
		return exitError{code: 1}
	}
	return nil
}

// recordHistory persists the summary to the run ledger. Ledger failures
// never fail the run itself.
func recordHistory(summary run.Summary) {
	path, err := config.HistoryPath()
	if err != nil {
		warnf("history unavailable: %v", err)
		return
	}

	store, err := history.NewStore(path)
	if err != nil {
		warnf("opening history: %v", err)
		return
	}
	defer store.Close()

	if err := store.RecordRun(context.Background(), summary); err != nil {
		warnf("recording run: %v", err)
	}
}

// authClient resolves the credential directory and OAuth client settings
// for the auth command. The configuration file is optional here: a
// first-time user can authorize before writing one, in which case
// credentials go to the working directory.
func authClient(configPath string, out io.Writer) (credDir, clientID, clientSecret string, err error) {
	if _, statErr := os.Stat(configPath); statErr != nil {
		if !os.IsNotExist(statErr) {
			return "", "", "", statErr
		}
		fmt.Fprintln(out, "Configuration file not found. Using current directory for authentication.")
		dir, err := os.Getwd()
		if err != nil {
			return "", "", "", fmt.Errorf("resolving working directory: %w", err)
		}
		return dir, "", "", nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return "", "", "", err
	}
	dir, err := cfg.CredentialsDir()
	if err != nil {
		return "", "", "", err
	}
	return dir, cfg.ClientID, cfg.ClientSecret, nil
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	account := args[0]

	credDir, clientID, clientSecret, err := authClient(configFlag, os.Stderr)
	if err != nil {
		return err
	}

	flow, err := gmail.NewFlow(credDir, clientID, clientSecret, os.Stderr)
	if err != nil {
		return err
	}

	v, err := vault.New(credDir, vault.WithAuthenticator(flow), vault.WithLogger(logger()))
	if err != nil {
		return err
	}

	rec, err := v.Authenticate(ctx, account)
	if err != nil {
		return err
	}
	if err := v.Save(account, rec); err != nil {
		return err
	}

	box, err := gmail.New(ctx, rec, logger())
	if err == nil {
		if err := box.CheckToken(ctx); err != nil {
			warnf("token stored but verification failed: %v", err)
		}
	}

	fmt.Printf("credentials stored for %s\n", account)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	path, err := config.HistoryPath()
	if err != nil {
		return err
	}

	store, err := history.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if runFlag != "" {
		records, err := store.AccountResults(ctx, runFlag)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no results for run %s\n", runFlag)
			return nil
		}
		for _, r := range records {
			line := fmt.Sprintf("%s: %s", r.Account, r.Status)
			if r.Status == "ok" {
				line = fmt.Sprintf("%s: %d attachment(s)", r.Account, r.Attachments)
			} else if r.Detail != "" {
				line += fmt.Sprintf(" (%s)", r.Detail)
			}
			fmt.Println(line)
		}
		return nil
	}

	runs, err := store.RecentRuns(ctx, limitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %s  window %s to %s  %d attachment(s), %d failed\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.ID,
			r.WindowStart.Format("2006-01-02"),
			r.WindowEnd.Format("2006-01-02"),
			r.Downloaded, r.Failed,
		)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configFlag); err == nil {
		return fmt.Errorf("%s already exists", configFlag)
	}
	if err := os.WriteFile(configFlag, config.DefaultTemplate(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configFlag, err)
	}
	fmt.Printf("wrote %s; edit it and run `mailsnag auth <account>` for each account\n", configFlag)
	return nil
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
