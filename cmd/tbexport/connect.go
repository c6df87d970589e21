package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/cli"
	"github.com/Veraticus/trial-balance-export/internal/config"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <region>",
		Short: "Authorize access to a Zoho Books region",
		Long: `Authorize tbexport to read Zoho Books reports in one region (IN, US, EU or UK).

This command will:
1. Start a local callback server on the configured redirect URL
2. Open the Zoho consent page in your browser
3. Exchange the returned code for a refresh token
4. Store the token encrypted in the database

With --manual no server is started: open the printed URL anywhere, then paste
the code (or the whole redirect URL) back into the terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: runConnect,
	}

	cmd.Flags().Bool("manual", false, "Paste the authorization code instead of running a callback server")
	cmd.Flags().Bool("no-browser", false, "Print the consent URL without opening a browser")
	cmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the browser callback")

	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	region, err := regionArg(args[0])
	if err != nil {
		return err
	}
	manual, _ := cmd.Flags().GetBool("manual")
	noBrowser, _ := cmd.Flags().GetBool("no-browser")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client, zcfg, err := initZoho()
	if err != nil {
		return err
	}
	if _, err := zcfg.CredentialsFor(region); err != nil {
		return err
	}
	hosts, err := zcfg.HostsFor(region)
	if err != nil {
		return err
	}

	sealer, err := config.LoadSealer()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	show := func(authURL string) {
		_, _ = fmt.Fprintln(out, cli.FormatInfo("Open this URL to authorize "+string(region)+":"))
		_, _ = fmt.Fprintln(out, authURL)
		if !noBrowser && !manual {
			openBrowser(authURL)
		}
	}

	var token *oauth2.Token
	if manual {
		token, err = connectManually(cmd, client, region, show)
	} else {
		token, err = client.Connect(ctx, region, zoho.ConnectOptions{OpenURL: show, Timeout: timeout})
	}
	if err != nil {
		return err
	}

	sealed, err := sealer.Seal(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	conn := hosts.NewConnection(config.LoadUserEmail(), region, sealed, time.Now().UTC())
	if err := store.SaveConnection(ctx, &conn); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	slog.Info("connection saved", "region", region, "user", conn.UserEmail, "dc", conn.DataCenter)
	_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Connected %s (%s)", region, conn.APIHost)))
	return err
}

func connectManually(cmd *cobra.Command, client *zoho.Client, region model.Region, show func(string)) (*oauth2.Token, error) {
	authURL, err := client.AuthCodeURL(region, uuid.NewString())
	if err != nil {
		return nil, err
	}
	show(authURL)

	reader := cli.NewLineReader(cmd.InOrStdin(), cmd.OutOrStdout())
	answer, err := reader.Ask(cmd.Context(), "Paste the code or redirect URL")
	if err != nil {
		return nil, err
	}
	return client.Exchange(cmd.Context(), region, authorizationCode(answer), "")
}

// authorizationCode accepts either a bare code or the full redirect URL.
func authorizationCode(answer string) string {
	answer = strings.TrimSpace(answer)
	if u, err := url.Parse(answer); err == nil && u.Scheme != "" {
		if code := u.Query().Get("code"); code != "" {
			return code
		}
	}
	return answer
}

// openBrowser tries to open the URL in the default browser.
func openBrowser(target string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", target).Start() //nolint:gosec
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start() //nolint:gosec
	case "darwin":
		err = exec.Command("open", target).Start() //nolint:gosec
	}
	if err != nil {
		slog.Debug("Failed to open browser", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, cli.FormatWarning("Could not open a browser; open the URL above manually"))
	}
}
