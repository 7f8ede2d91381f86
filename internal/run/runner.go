// Package run sequences authentication, filtering, and download across all
// configured accounts, isolating failures per account.
package run

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailsnag/internal/config"
	"github.com/nhle/mailsnag/internal/filter"
	"github.com/nhle/mailsnag/internal/source"
	"github.com/nhle/mailsnag/internal/vault"
)

// CredentialSource is the subset of the vault the runner consumes: a load
// that transparently refreshes and re-persists expired bundles.
type CredentialSource interface {
	LoadUsable(ctx context.Context, accountID string) (vault.Record, error)
}

// Opener builds the mailbox provider for an account once its credentials
// are loaded.
type Opener func(ctx context.Context, acct config.Account, rec vault.Record) (source.Mailbox, error)

// tokenExpiryMarkers are error-text fragments that identify a token-expiry
// failure hiding behind a generic error.
var tokenExpiryMarkers = []string{
	"invalid_grant",
	"Token has been expired",
	"token expired",
}

// Runner executes one download run. Accounts are processed strictly
// sequentially in configuration order; one account's failure never prevents
// attempting the rest.
type Runner struct {
	Vault       CredentialSource
	Open        Opener
	DownloadDir string
	Logger      *log.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Run processes every account and returns the summary. The search window
// [now-days, now) is fixed once here, before any account is touched. A
// context cancellation aborts between blocking operations and is returned
// as the error alongside the partial summary.
func (r *Runner) Run(ctx context.Context, accounts []config.Account, days int) (*Summary, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	summary := &Summary{
		RunID:   uuid.New().String(),
		Window:  source.Window{Start: now.AddDate(0, 0, -days), End: now},
		Started: now,
	}

	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			summary.Finished = time.Now()
			return summary, err
		}

		r.logf("processing %s", acct.Address)
		result, err := r.processAccount(ctx, acct, summary.Window)
		if err != nil {
			// Interrupted mid-account: what was already written stays,
			// but the account gets no result.
			summary.Finished = time.Now()
			return summary, err
		}
		summary.Results = append(summary.Results, result)
	}

	summary.Finished = time.Now()
	return summary, nil
}

// processAccount runs every filter set of one account and classifies any
// failure into the result. The returned error is non-nil only for context
// cancellation, which aborts the run rather than failing the account.
func (r *Runner) processAccount(ctx context.Context, acct config.Account, w source.Window) (AccountResult, error) {
	result := AccountResult{Account: acct.Address}

	if err := acct.Validate(); err != nil {
		result.Status = StatusInvalidConfig
		result.Detail = err.Error()
		return result, nil
	}

	rec, err := r.Vault.LoadUsable(ctx, acct.Address)
	if err != nil {
		return r.finish(ctx, result, err)
	}

	box, err := r.Open(ctx, acct, rec)
	if err != nil {
		return r.finish(ctx, result, err)
	}

	for i, spec := range acct.Filters {
		count, err := r.processFilterSet(ctx, box, acct, spec, w)
		result.Attachments += count
		if err != nil {
			return r.finish(ctx, result, err)
		}
		r.logf("  filter set %d/%d (%s): %d attachments", i+1, len(acct.Filters), spec.Describe(), count)
	}

	result.Status = StatusSuccess
	return result, nil
}

// finish separates cancellation from account failure: a canceled context
// aborts the run, anything else is classified into the account's result.
func (r *Runner) finish(ctx context.Context, result AccountResult, err error) (AccountResult, error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return result, err
	}
	return r.classify(result, err), nil
}

// processFilterSet evaluates one filter set: derive the coarse query, fetch
// candidates, match locally, and write accepted attachments.
func (r *Runner) processFilterSet(ctx context.Context, box source.Mailbox, acct config.Account, spec filter.Spec, w source.Window) (int, error) {
	compiled, err := filter.Compile(spec)
	if err != nil {
		return 0, invalidConfigError{err}
	}

	messages, err := box.Search(ctx, spec.Query(), w)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		if !compiled.Matches(filter.Message{
			From:    msg.From,
			To:      msg.To,
			Subject: msg.Subject,
			Body:    msg.Body,
		}) {
			continue
		}

		for _, att := range msg.Attachments {
			if att.Filename == "" || !compiled.MatchesAttachment(att.Filename) {
				continue
			}

			data := att.Data
			if data == nil {
				data, err = box.Attachment(ctx, msg.ID, att.ID)
				if err != nil {
					return count, err
				}
			}

			if err := r.write(acct.Address, att.Filename, data); err != nil {
				return count, err
			}
			count++
		}
	}

	return count, nil
}

// write stores one attachment under the account's output directory,
// overwriting on name collision.
func (r *Runner) write(account, filename string, data []byte) error {
	dir := filepath.Join(r.DownloadDir, account)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", dir, err)
	}

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	r.logf("  saved %s", path)
	return nil
}

// invalidConfigError marks a per-account configuration failure, such as an
// uncompilable filter pattern.
type invalidConfigError struct{ err error }

func (e invalidConfigError) Error() string { return e.err.Error() }
func (e invalidConfigError) Unwrap() error { return e.err }

// classify converts an account-level error into the result's terminal
// status. Generic errors are re-inspected for token-expiry markers.
func (r *Runner) classify(result AccountResult, err error) AccountResult {
	result.Detail = err.Error()

	var cfgErr invalidConfigError
	switch {
	case errors.Is(err, vault.ErrCredentialsNotFound):
		result.Status = StatusCredentialsMissing
	case errors.Is(err, vault.ErrTokenExpired) || source.IsAuthError(err) || hasExpiryMarker(err):
		result.Status = StatusTokenExpired
	case errors.As(err, &cfgErr):
		result.Status = StatusInvalidConfig
	default:
		result.Status = StatusError
	}

	r.logf("  %s failed: %s (%s)", result.Account, result.Status, result.Detail)
	return result
}

// hasExpiryMarker reports whether the error text matches a known
// token-expiry fragment.
func hasExpiryMarker(err error) bool {
	msg := err.Error()
	for _, marker := range tokenExpiryMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
