package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsnag/internal/config"
	"github.com/nhle/mailsnag/internal/filter"
	"github.com/nhle/mailsnag/internal/source"
	"github.com/nhle/mailsnag/internal/vault"
)

// fakeVault serves canned records or errors per account.
type fakeVault struct {
	records map[string]vault.Record
	errs    map[string]error
}

func (f *fakeVault) LoadUsable(_ context.Context, accountID string) (vault.Record, error) {
	if err := f.errs[accountID]; err != nil {
		return vault.Record{}, err
	}
	rec, ok := f.records[accountID]
	if !ok {
		return vault.Record{}, fmt.Errorf("%w for %s", vault.ErrCredentialsNotFound, accountID)
	}
	return rec, nil
}

// fakeMailbox returns canned messages for every search and serves
// attachment bytes from a map keyed msgID/attID.
type fakeMailbox struct {
	messages  []source.Message
	data      map[string][]byte
	searchErr error

	queries []string
}

func (f *fakeMailbox) Search(_ context.Context, query string, _ source.Window) ([]source.Message, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.messages, nil
}

func (f *fakeMailbox) Attachment(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	data, ok := f.data[messageID+"/"+attachmentID]
	if !ok {
		return nil, fmt.Errorf("no attachment %s on %s", attachmentID, messageID)
	}
	return data, nil
}

func (f *fakeMailbox) CheckToken(context.Context) error { return nil }

func account(address string, specs ...filter.Spec) config.Account {
	if len(specs) == 0 {
		specs = []filter.Spec{{}}
	}
	return config.Account{Address: address, Filters: specs}
}

func newRunner(t *testing.T, v CredentialSource, boxes map[string]source.Mailbox) *Runner {
	t.Helper()
	return &Runner{
		Vault: v,
		Open: func(_ context.Context, acct config.Account, _ vault.Record) (source.Mailbox, error) {
			box, ok := boxes[acct.Address]
			if !ok {
				return nil, fmt.Errorf("no mailbox for %s", acct.Address)
			}
			return box, nil
		},
		DownloadDir: t.TempDir(),
		Now:         func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func grantAll(accounts ...string) *fakeVault {
	v := &fakeVault{records: map[string]vault.Record{}, errs: map[string]error{}}
	for _, a := range accounts {
		v.records[a] = vault.Record{AccountID: a, AccessToken: "token"}
	}
	return v
}

func TestRunDownloadsMatchingAttachments(t *testing.T) {
	box := &fakeMailbox{
		messages: []source.Message{
			{
				ID:      "m1",
				From:    "invoice@billing.example.com",
				Subject: "Invoice for May",
				Attachments: []source.Attachment{
					{ID: "a1", Filename: "invoice.pdf"},
					{ID: "a2", Filename: "notes.txt"},
				},
			},
			{
				ID:      "m2",
				From:    "newsletter@other.com",
				Subject: "Weekly digest",
				Attachments: []source.Attachment{
					{ID: "a3", Filename: "digest.pdf"},
				},
			},
		},
		data: map[string][]byte{
			"m1/a1": []byte("pdf-bytes"),
		},
	}

	acct := account("user@example.com", filter.Spec{
		From:        filter.PatternList{`invoice@.*\.example\.com`},
		Attachments: filter.PatternList{"*.pdf"},
	})

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})

	summary, err := r.Run(context.Background(), []config.Account{acct}, 7)
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, StatusSuccess, summary.Results[0].Status)
	assert.Equal(t, 1, summary.Results[0].Attachments)
	assert.Equal(t, 1, summary.Downloaded())
	assert.Zero(t, summary.Failed())

	written, err := os.ReadFile(filepath.Join(r.DownloadDir, "user@example.com", "invoice.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), written)

	_, err = os.Stat(filepath.Join(r.DownloadDir, "user@example.com", "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunUsesInlineAttachmentData(t *testing.T) {
	box := &fakeMailbox{
		messages: []source.Message{
			{
				ID: "m1",
				Attachments: []source.Attachment{
					{ID: "a1", Filename: "inline.pdf", Data: []byte("inline-bytes")},
				},
			},
		},
	}

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})

	summary, err := r.Run(context.Background(), []config.Account{account("user@example.com")}, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Downloaded())

	written, err := os.ReadFile(filepath.Join(r.DownloadDir, "user@example.com", "inline.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("inline-bytes"), written)
}

func TestRunWindowFixedOnce(t *testing.T) {
	r := newRunner(t, grantAll(), map[string]source.Mailbox{})

	summary, err := r.Run(context.Background(), nil, 7)
	require.NoError(t, err)

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now, summary.Window.End)
	assert.Equal(t, now.AddDate(0, 0, -7), summary.Window.Start)
}

func TestRunIsolatesAccountFailures(t *testing.T) {
	okBox := &fakeMailbox{}
	boxes := map[string]source.Mailbox{
		"second@example.com": okBox,
	}

	accounts := []config.Account{
		account("first@example.com"),
		account("second@example.com"),
	}

	r := newRunner(t, grantAll("second@example.com"), boxes)

	summary, err := r.Run(context.Background(), accounts, 7)
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, StatusCredentialsMissing, summary.Results[0].Status)
	assert.Equal(t, StatusSuccess, summary.Results[1].Status)
	assert.Equal(t, 1, summary.Failed())
	assert.False(t, summary.OK())
}

func TestRunPreservesAccountOrder(t *testing.T) {
	accounts := []config.Account{
		account("c@example.com"),
		account("a@example.com"),
		account("b@example.com"),
	}

	r := newRunner(t, grantAll(), map[string]source.Mailbox{})

	summary, err := r.Run(context.Background(), accounts, 7)
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, "c@example.com", summary.Results[0].Account)
	assert.Equal(t, "a@example.com", summary.Results[1].Account)
	assert.Equal(t, "b@example.com", summary.Results[2].Account)
}

func TestRunClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Status
	}{
		{
			name: "missing credentials",
			err:  fmt.Errorf("%w for x", vault.ErrCredentialsNotFound),
			want: StatusCredentialsMissing,
		},
		{
			name: "expired token sentinel",
			err:  fmt.Errorf("%w for x", vault.ErrTokenExpired),
			want: StatusTokenExpired,
		},
		{
			name: "invalid_grant marker in a generic error",
			err:  errors.New(`oauth2: "invalid_grant" token revoked`),
			want: StatusTokenExpired,
		},
		{
			name: "corrupted credentials are a generic failure",
			err:  fmt.Errorf("loading: %w", vault.ErrCorrupted),
			want: StatusError,
		},
		{
			name: "network failure",
			err:  errors.New("dial tcp: connection refused"),
			want: StatusError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &fakeVault{errs: map[string]error{"user@example.com": tc.err}}
			r := newRunner(t, v, map[string]source.Mailbox{})

			summary, err := r.Run(context.Background(), []config.Account{account("user@example.com")}, 7)
			require.NoError(t, err)
			require.Len(t, summary.Results, 1)
			assert.Equal(t, tc.want, summary.Results[0].Status)
			assert.NotEmpty(t, summary.Results[0].Detail)
		})
	}
}

func TestRunAuthErrorFromProvider(t *testing.T) {
	box := &fakeMailbox{
		searchErr: &source.AuthError{Account: "user@example.com", Message: "401 unauthorized"},
	}

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})

	summary, err := r.Run(context.Background(), []config.Account{account("user@example.com")}, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusTokenExpired, summary.Results[0].Status)
}

func TestRunInvalidAccountConfig(t *testing.T) {
	t.Run("bad address", func(t *testing.T) {
		r := newRunner(t, grantAll(), map[string]source.Mailbox{})
		acct := config.Account{Address: "not-an-address", Filters: []filter.Spec{{}}}

		summary, err := r.Run(context.Background(), []config.Account{acct}, 7)
		require.NoError(t, err)
		assert.Equal(t, StatusInvalidConfig, summary.Results[0].Status)
	})

	t.Run("uncompilable filter pattern", func(t *testing.T) {
		box := &fakeMailbox{}
		r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})
		acct := account("user@example.com", filter.Spec{From: filter.PatternList{"("}})

		summary, err := r.Run(context.Background(), []config.Account{acct}, 7)
		require.NoError(t, err)
		assert.Equal(t, StatusInvalidConfig, summary.Results[0].Status)
		assert.Empty(t, box.queries)
	})
}

func TestRunSumsFilterSetCounts(t *testing.T) {
	box := &fakeMailbox{
		messages: []source.Message{
			{
				ID:      "m1",
				From:    "billing@service1.com",
				Subject: "Invoice",
				Attachments: []source.Attachment{
					{ID: "a1", Filename: "invoice.pdf", Data: []byte("one")},
					{ID: "a2", Filename: "summary.xlsx", Data: []byte("two")},
				},
			},
		},
	}

	acct := account("user@example.com",
		filter.Spec{Attachments: filter.PatternList{"*.pdf"}},
		filter.Spec{Attachments: filter.PatternList{"*.xlsx"}},
	)

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})

	summary, err := r.Run(context.Background(), []config.Account{acct}, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Results[0].Attachments)
	assert.Len(t, box.queries, 2)
}

func TestRunSearchFailureStopsAccount(t *testing.T) {
	box := &fakeMailbox{searchErr: errors.New("remote search failed")}

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{"user@example.com": box})

	summary, err := r.Run(context.Background(), []config.Account{account("user@example.com")}, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusError, summary.Results[0].Status)
	assert.True(t, summary.Results[0].Failed())
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(t, grantAll("user@example.com"), map[string]source.Mailbox{})

	summary, err := r.Run(ctx, []config.Account{account("user@example.com")}, 7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Results)
}

func TestRenderSummary(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	summary := Summary{
		RunID:    "run-1",
		Window:   source.Window{Start: now.AddDate(0, 0, -7), End: now},
		Started:  now,
		Finished: now.Add(3 * time.Second),
		Results: []AccountResult{
			{Account: "ok@example.com", Status: StatusSuccess, Attachments: 2},
			{Account: "stale@example.com", Status: StatusTokenExpired, Detail: "token expired"},
		},
	}

	out := Render(summary)

	assert.Contains(t, out, "ok@example.com: 2 attachment(s)")
	assert.Contains(t, out, "stale@example.com: token expired")
	assert.Contains(t, out, "1/2 accounts succeeded")
	assert.Contains(t, out, "mailsnag auth stale@example.com")
}
