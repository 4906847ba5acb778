package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/workbook"
)

const (
	SHEETS = "https://www.googleapis.com/auth/spreadsheets"
	DRIVE  = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// mirror holds the spreadsheet mirror settings resolved from the flags and settings file.
type mirror struct {
	url         string
	credentials string
	tokens      string
}

func (e *environment) mirror(url, credentials, tokens string) mirror {
	m := mirror{
		url:         e.config.Google.URL,
		credentials: e.config.Path(e.config.Google.Credentials),
		tokens:      e.config.Path(e.config.Google.Tokens),
	}

	if strings.TrimSpace(url) != "" {
		m.url = strings.TrimSpace(url)
	}

	if strings.TrimSpace(credentials) != "" {
		m.credentials = credentials
	}

	if strings.TrimSpace(tokens) != "" {
		m.tokens = tokens
	}

	return m
}

func (m mirror) spreadsheet(ctx context.Context) (*workbook.Spreadsheet, error) {
	if m.url == "" {
		return nil, domain.ErrConfiguration("--url is a required option")
	}

	if _, err := workbook.SpreadsheetID(m.url); err != nil {
		return nil, err
	}

	client, err := authorize(ctx, m.credentials, m.tokens)
	if err != nil {
		return nil, err
	}

	return workbook.NewSpreadsheet(ctx, m.url, option.WithHTTPClient(client))
}

// revision is the file holding the last published or pulled revision of a spreadsheet.
func (m mirror) revision(id string) string {
	return filepath.Join(m.tokens, fmt.Sprintf("%s.revision", id))
}

func oauthConfig(credentials string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentials)
	if err != nil {
		return nil, domain.ErrConfiguration("unable to read Google credentials (%w)", err)
	}

	config, err := google.ConfigFromJSON(b, SHEETS, DRIVE)
	if err != nil {
		return nil, domain.ErrConfiguration("invalid Google credentials '%s' (%w)", credentials, err)
	}

	return config, nil
}

func tokensFile(credentials, tokens string) string {
	_, file := filepath.Split(credentials)
	name := strings.TrimSuffix(file, filepath.Ext(file))

	return filepath.Join(tokens, fmt.Sprintf("%s.tokens", name))
}

// authorize returns an HTTP client using the stored OAuth2 tokens. The tokens are created
// by the 'authorise' command.
func authorize(ctx context.Context, credentials, tokens string) (*http.Client, error) {
	config, err := oauthConfig(credentials)
	if err != nil {
		return nil, err
	}

	file := tokensFile(credentials, tokens)
	token, err := tokenFromFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrConfiguration("not authorised to access Google Sheets (run '%s authorise')", APP)
	} else if err != nil {
		return nil, domain.ErrConfiguration("invalid tokens file '%s' (%w)", file, err)
	}

	return config.Client(ctx, token), nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	token := oauth2.Token{}
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, err
	}

	return &token, nil
}

func saveToken(file string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return domain.ErrIOFailure("unable to create tokens directory (%w)", err)
	}

	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return domain.ErrIOFailure("unable to save OAuth2 tokens (%w)", err)
	}

	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return domain.ErrIOFailure("unable to save OAuth2 tokens (%w)", err)
	}

	return nil
}

func loadRevision(file string) string {
	b, err := os.ReadFile(file)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(b))
}

func saveRevision(file string, revision string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return domain.ErrIOFailure("unable to create revisions directory (%w)", err)
	}

	if err := os.WriteFile(file, []byte(revision+"\n"), 0600); err != nil {
		return domain.ErrIOFailure("unable to save spreadsheet revision (%w)", err)
	}

	return nil
}
