package gmail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/nhle/mailsnag/internal/vault"
)

// clientSecretFile is the installed-app OAuth client configuration, looked
// up in the credentials directory.
const clientSecretFile = "client_secret.json"

// redirectOOB makes the provider display the authorization code for the
// user to paste back, instead of redirecting to a local listener.
const redirectOOB = "urn:ietf:wg:oauth:2.0:oob"

// Flow runs the interactive authorization-code exchange for one account.
// It implements vault.Authenticator.
type Flow struct {
	conf *oauth2.Config
	out  io.Writer

	// Prompt collects the authorization code from the operator. The
	// default prompts on the terminal.
	Prompt func() (string, error)
}

// NewFlow builds the authorization flow. It prefers a client_secret.json in
// credentialsDir; failing that it uses the client ID and secret provided by
// configuration. Scopes are fixed to read-only mailbox access.
func NewFlow(credentialsDir, clientID, clientSecret string, out io.Writer) (*Flow, error) {
	var conf *oauth2.Config

	secretPath := filepath.Join(credentialsDir, clientSecretFile)
	if data, err := os.ReadFile(secretPath); err == nil {
		conf, err = google.ConfigFromJSON(data, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", secretPath, err)
		}
	} else if clientID != "" && clientSecret != "" {
		conf = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		}
	} else {
		return nil, fmt.Errorf("no OAuth client configured: place %s in %s or set client_id and client_secret in the config file", clientSecretFile, credentialsDir)
	}
	conf.RedirectURL = redirectOOB

	return &Flow{conf: conf, out: out, Prompt: promptCode}, nil
}

// Authorize prints the consent URL, collects the authorization code, and
// exchanges it for a token bundle. The bundle is returned unpersisted.
func (f *Flow) Authorize(ctx context.Context, accountID string) (vault.Record, error) {
	state, err := randomState()
	if err != nil {
		return vault.Record{}, err
	}

	authURL := f.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("login_hint", accountID),
	)

	fmt.Fprintln(f.out, "Visit this URL to authorize the application:")
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, authURL)
	fmt.Fprintln(f.out)

	code, err := f.Prompt()
	if err != nil {
		return vault.Record{}, fmt.Errorf("reading authorization code: %w", err)
	}

	tok, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return vault.Record{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return vault.Record{
		AccountID:     accountID,
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenEndpoint: f.conf.Endpoint.TokenURL,
		ClientID:      f.conf.ClientID,
		ClientSecret:  f.conf.ClientSecret,
		Scopes:        f.conf.Scopes,
		Expiry:        tok.Expiry,
	}, nil
}

// promptCode asks for the authorization code on the terminal.
func promptCode() (string, error) {
	var code string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Authorization code").
			Description("Paste the code shown after granting access").
			Value(&code),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return code, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
