package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/apideck-libraries/vault-core-sub000/internal/listener"
	"github.com/apideck-libraries/vault-core-sub000/pkg/connection"
)

var (
	authorizeTimeout      time.Duration
	authorizeRedirectPort int
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize <unifiedApi+serviceId>",
	Short: "Run the authorization handshake for a connection",
	Long: `authorize opens the backend-provided authorization URL in a browser and
waits for the authorizer to redirect back to a temporary loopback server.
The redirect is validated (origin, then CSRF nonce) and the handshake is
confirmed with the backend. Non-interactive grant types skip the browser
and exchange tokens directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorize,
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	id, err := connection.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := newWidget(cfg)
	defer w.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), authorizeTimeout)
	defer cancel()

	conn, err := w.Service().Refresh(ctx, id)
	if err != nil {
		return err
	}
	if conn.State.Authorized() {
		fmt.Printf("Connection %s is already authorized (%s)\n", id, coloredState(conn.State))
	}

	if conn.UsesDirectExchange() {
		auth, err := w.Authorize(ctx, conn)
		if err != nil {
			return err
		}
		<-auth.Done()
		return printOutcome(w.Service().Get(id))
	}

	// The loopback server stands in for the embedding page: it receives the
	// authorizer's redirect and converts it into a completion message.
	redirect := listener.NewRedirectServer(authorizeRedirectPort)
	redirectURI, err := redirect.Start(ctx)
	if err != nil {
		return err
	}
	conn.AuthorizeURL = appendRedirectURI(conn.AuthorizeURL, redirectURI)

	auth, err := w.Authorize(ctx, conn)
	if err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(" Waiting for authorization of %s in the browser...", id)
	s.Start()

	msg, err := redirect.WaitForMessage(ctx)
	s.Stop()
	if err != nil {
		// No redirect arrived. If the browser was simply closed the widget
		// already re-fetched state; report whatever the backend says.
		select {
		case <-auth.Done():
			return printOutcome(w.Service().Get(id))
		default:
			return fmt.Errorf("authorization did not complete: %w", err)
		}
	}

	w.HandleMessage(ctx, msg)
	return printOutcome(w.Service().Get(id))
}

func printOutcome(conn *connection.Connection) error {
	if conn == nil {
		return fmt.Errorf("connection state unknown after authorization")
	}
	fmt.Printf("Connection %s: %s\n", conn.Identity(), coloredState(conn.State))
	if !conn.State.Authorized() {
		return fmt.Errorf("connection %s was not authorized", conn.Identity())
	}
	if conn.HasOutstandingRequiredFields() {
		fmt.Println("Required settings are still outstanding; the connection is not callable yet.")
	}
	return nil
}

// appendRedirectURI adds the loopback redirect to the authorize URL. Invalid
// URLs pass through untouched; the widget validates them before launching.
func appendRedirectURI(authorizeURL, redirectURI string) string {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return authorizeURL
	}
	q := u.Query()
	q.Set("redirect_uri", redirectURI)
	u.RawQuery = q.Encode()
	return u.String()
}

func init() {
	authorizeCmd.Flags().DurationVar(&authorizeTimeout, "timeout", 5*time.Minute, "How long to wait for the handshake to complete")
	authorizeCmd.Flags().IntVar(&authorizeRedirectPort, "redirect-port", 0, "Loopback port for the redirect server (0 picks a free port)")
	rootCmd.AddCommand(authorizeCmd)
}
