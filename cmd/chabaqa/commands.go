package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"chabaqa/backend/internal/authapi"
	"chabaqa/backend/internal/authclient"
)

func loginCmd(a *app) *cobra.Command {
	var email, password, code string
	var devCode bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := promptCredentials(&email, &password); err != nil {
				return err
			}
			res, err := a.session.Login(ctx, email, password)
			if err != nil {
				return describe(err)
			}
			if res.RequiresTwoFactor {
				if err := a.secondFactor(cmd, email, code, devCode, res.ChallengeExpiresAt); err != nil {
					return err
				}
			}
			printUser(cmd.OutOrStdout(), a.session.User())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&code, "code", "", "6-digit verification code, if the account uses 2FA")
	cmd.Flags().BoolVar(&devCode, "dev-code", false, "fetch the 2FA code from a backend in dev OTP mode")
	return cmd
}

func (a *app) secondFactor(cmd *cobra.Command, email, code string, devCode bool, expires time.Time) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if !expires.IsZero() {
		fmt.Fprintf(out, "A verification code was sent to %s. It expires at %s.\n", email, expires.Local().Format(time.Kitchen))
	}
	if code == "" && devCode {
		c, err := a.client.DevCode(ctx, email)
		if err != nil {
			return describe(err)
		}
		code = c
	}
	if code == "" {
		var err error
		if code, err = promptCode(); err != nil {
			return err
		}
	}
	if err := a.session.VerifyTwoFactor(ctx, email, code); err != nil {
		return describe(err)
	}
	return nil
}

func registerCmd(a *app) *cobra.Command {
	var req authapi.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := promptCredentials(&req.Email, &req.Password); err != nil {
				return err
			}
			res, err := a.session.Register(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			if res.RequiresTwoFactor {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created. Run `chabaqa login` to finish signing in.")
				return nil
			}
			printUser(cmd.OutOrStdout(), a.session.User())
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Role, "role", "user", "user or creator")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Init(cmd.Context()); err != nil {
				return describe(err)
			}
			u := a.session.User()
			if u == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func refreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Refresh(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed.")
			return nil
		},
	}
}

func twoFactorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Turn email verification codes on or off",
	}
	set := func(enabled bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			t, err := a.store.Load(ctx)
			if err != nil {
				return errors.New("not signed in")
			}
			u, err := a.client.SetTwoFactor(ctx, t.AccessToken, enabled)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Two-factor authentication is now %s for %s.\n", onOff(u.TwoFactorEnabled), u.Email)
			return nil
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "enable", Short: "Require a code at sign-in", RunE: set(true)},
		&cobra.Command{Use: "disable", Short: "Stop requiring a code", RunE: set(false)},
	)
	return cmd
}

func printUser(w io.Writer, u *authapi.User) {
	if u == nil {
		return
	}
	fmt.Fprintf(w, "Signed in as %s (%s)\n", u.Email, u.Role)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// describe turns client errors into messages fit for a terminal.
func describe(err error) error {
	var ve *authclient.ValidationError
	var apiErr *authclient.APIError
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.Is(err, authclient.ErrConnection):
		return errors.New("connection error, please try again")
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return errors.New(apiErr.Message)
	}
	return err
}
