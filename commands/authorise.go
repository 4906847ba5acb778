package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/oauth2"

	"github.com/uoloki/microsoft-dataextract/domain"
)

var AuthoriseCmd = Authorise{
	listen: "127.0.0.1:0",
}

type Authorise struct {
	credentials string
	tokens      string
	listen      string
	manual      bool
}

func (cmd *Authorise) Name() string {
	return "authorise"
}

func (cmd *Authorise) Description() string {
	return "Authorises access to the Google Sheets spreadsheets used for review"
}

func (cmd *Authorise) Usage() string {
	return "[--credentials <file>] [--tokens <dir>] [--manual]"
}

func (cmd *Authorise) Help() string {
	return fmt.Sprintf(`Runs the Google OAuth2 authorisation flow and saves the tokens used by the 'publish' and
'pull' commands. By default the authorisation code is received on a local HTTP listener;
with --manual the code is pasted on the command line instead.

Examples:
  %[1]s authorise --credentials ".google/credentials.json"
  %[1]s authorise --manual`, APP)
}

func (cmd *Authorise) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.credentials, "credentials", cmd.credentials, "Path for the Google 'credentials.json' file")
	flagset.StringVar(&cmd.tokens, "tokens", cmd.tokens, "Directory for the OAuth2 tokens file")
	flagset.StringVar(&cmd.listen, "listen", cmd.listen, "Local address for the authorisation callback")
	flagset.BoolVar(&cmd.manual, "manual", cmd.manual, "Prompts for the authorisation code instead of starting a local listener")
}

func (cmd *Authorise) Execute(ctx context.Context, options *Options) error {
	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	m := env.mirror("", cmd.credentials, cmd.tokens)

	config, err := oauthConfig(m.credentials)
	if err != nil {
		return err
	}

	var code string
	if cmd.manual {
		code, err = prompt(config, os.Stdin, os.Stdout)
	} else {
		code, err = listen(ctx, config, cmd.listen, os.Stdout)
	}

	if err != nil {
		return err
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return domain.ErrConfiguration("unable to retrieve OAuth2 token (%w)", err)
	}

	file := tokensFile(m.credentials, m.tokens)
	if err := saveToken(file, token); err != nil {
		return err
	}

	env.log.Info("authorised", "tokens", file)

	return nil
}

func prompt(config *oauth2.Config, r io.Reader, w io.Writer) (string, error) {
	url := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	fmt.Fprintf(w, "Go to the following link in your browser then type the authorization code:\n%v\n", url)

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return "", domain.ErrConfiguration("no authorization code")
	}

	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", domain.ErrConfiguration("no authorization code")
	}

	return code, nil
}

// listen starts a local HTTP listener to receive the OAuth2 redirect and waits for the
// authorisation code.
func listen(ctx context.Context, config *oauth2.Config, address string, w io.Writer) (string, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return "", domain.ErrIOFailure("unable to start authorisation listener (%w)", err)
	}

	state := uuid.NewString()
	codes := make(chan string, 1)

	config.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr())

	srv := http.Server{
		Handler: authorised(state, codes),
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(w, "ERROR authorisation listener (%v)\n", err)
		}
	}()

	defer srv.Shutdown(context.Background())

	fmt.Fprintf(w, "Open the following link in your browser to authorise access:\n%v\n", config.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case <-ctx.Done():
		return "", ctx.Err()

	case code := <-codes:
		return code, nil
	}
}

func authorised(state string, codes chan<- string) http.HandlerFunc {
	return func(w http.ResponseWriter, rq *http.Request) {
		if rq.FormValue("state") != state {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}

		if reason := rq.FormValue("error"); reason != "" {
			http.Error(w, fmt.Sprintf("Authorisation declined (%v)", reason), http.StatusForbidden)
			return
		}

		code := rq.FormValue("code")
		if code == "" {
			http.Error(w, "Missing authorisation code", http.StatusBadRequest)
			return
		}

		select {
		case codes <- code:
		default:
		}

		fmt.Fprintln(w, "Authorised. You can close this page.")
	}
}
