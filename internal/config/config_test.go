package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsnag/internal/filter"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"default_days": 14,
		"download_base_path": "./out",
		"accounts": [
			{
				"account": "user@example.com",
				"filters": [
					{"from": "billing@service1\\.com", "attachments": ["*.pdf"]}
				]
			},
			{
				"account": "other@example.com",
				"provider": "imap",
				"server": "imap.example.com:993",
				"filters": [
					{"subject": ["Receipt", "Invoice"]}
				]
			}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.DefaultDays)
	require.Len(t, cfg.Accounts, 2)

	first := cfg.Accounts[0]
	assert.Equal(t, "user@example.com", first.Address)
	require.Len(t, first.Filters, 1)
	assert.Equal(t, filter.PatternList{`billing@service1\.com`}, first.Filters[0].From)
	assert.Equal(t, filter.PatternList{"*.pdf"}, first.Filters[0].Attachments)

	second := cfg.Accounts[1]
	assert.Equal(t, ProviderIMAP, second.Provider)
	assert.Equal(t, "imap.example.com:993", second.Server)
	assert.Equal(t, filter.PatternList{"Receipt", "Invoice"}, second.Filters[0].Subject)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "out"), cfg.DownloadDir())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"accounts": [
			{"account": "user@example.com", "filters": [{}]}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.DefaultDays)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "downloads"), cfg.DownloadDir())
}

func TestLoadPreservesAccountOrder(t *testing.T) {
	path := writeConfig(t, `{
		"accounts": [
			{"account": "c@example.com", "filters": [{}]},
			{"account": "a@example.com", "filters": [{}]},
			{"account": "b@example.com", "filters": [{}]}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 3)
	assert.Equal(t, "c@example.com", cfg.Accounts[0].Address)
	assert.Equal(t, "a@example.com", cfg.Accounts[1].Address)
	assert.Equal(t, "b@example.com", cfg.Accounts[2].Address)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := Load(writeConfig(t, `{"accounts": [`))
		assert.Error(t, err)
	})

	t.Run("no accounts", func(t *testing.T) {
		_, err := Load(writeConfig(t, `{"accounts": []}`))
		assert.Error(t, err)
	})

	t.Run("non-positive default_days", func(t *testing.T) {
		_, err := Load(writeConfig(t, `{
			"default_days": 0,
			"accounts": [{"account": "a@b.com", "filters": [{}]}]
		}`))
		assert.Error(t, err)
	})
}

func TestAccountValidate(t *testing.T) {
	cases := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{
			name:    "valid gmail account",
			account: Account{Address: "a@b.com", Filters: []filter.Spec{{}}},
		},
		{
			name: "valid imap account",
			account: Account{
				Address:  "a@b.com",
				Provider: ProviderIMAP,
				Server:   "imap.b.com:993",
				Filters:  []filter.Spec{{}},
			},
		},
		{
			name:    "address without @",
			account: Account{Address: "nope", Filters: []filter.Spec{{}}},
			wantErr: true,
		},
		{
			name:    "empty address",
			account: Account{Filters: []filter.Spec{{}}},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			account: Account{Address: "a@b.com", Provider: "pop3", Filters: []filter.Spec{{}}},
			wantErr: true,
		},
		{
			name:    "imap without server",
			account: Account{Address: "a@b.com", Provider: ProviderIMAP, Filters: []filter.Spec{{}}},
			wantErr: true,
		},
		{
			name:    "no filter sets",
			account: Account{Address: "a@b.com"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.account.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultTemplateParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, DefaultTemplate(), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	for _, acct := range cfg.Accounts {
		assert.NoError(t, acct.Validate())
	}
}
