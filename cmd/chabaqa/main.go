// Chabaqa is a command-line client for the auth API. It keeps the signed-in session in a
// private token file, the way the mobile app keeps it in secure storage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"chabaqa/backend/internal/authclient"
	"chabaqa/backend/internal/config"
	"chabaqa/backend/internal/logging"
	"chabaqa/backend/internal/tokenstore"
)

// app is built once per invocation by the root command's PersistentPreRunE.
type app struct {
	backendURL string
	tokenFile  string
	client     *authclient.Client
	store      *tokenstore.FileStore
	session    *authclient.Session
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "chabaqa",
		Short:         "Sign in to Chabaqa from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.backendURL, "backend", "", "backend base URL (default $BACKEND_URL)")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", "", "token file (default <config dir>/chabaqa/tokens.json)")

	root.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		refreshCmd(a),
		twoFactorCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.LogLevel, false))

	if a.backendURL == "" {
		a.backendURL = cfg.BackendURL
	}
	if a.tokenFile == "" {
		if a.tokenFile, err = tokenstore.DefaultPath(); err != nil {
			return err
		}
	}
	a.client = authclient.New(a.backendURL)
	a.store = tokenstore.NewFileStore(a.tokenFile)
	a.session = authclient.NewSession(a.client, a.store, authclient.NavigatorFunc(func(path string) {
		slog.Debug("navigate", "path", path)
	}), cfg.HomePath)
	return nil
}
