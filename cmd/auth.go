package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pelusa-v/wachat/internal/chat"
	"github.com/pelusa-v/wachat/internal/render"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		s, err := chat.SignIn(cmd.Context(), client, chat.SignInForm{Email: email, Password: password})
		if err != nil {
			return err
		}
		if err := sessionFile().Save(s); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", s.User.Email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		res, err := chat.SignUp(cmd.Context(), client, chat.SignUpForm{
			Email: email, Password: password, Username: username,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Session == nil {
			fmt.Fprintf(out, "Account created for %s. Confirm your email, then run `wachat login`.\n", res.User.Email)
			return nil
		}
		if err := sessionFile().Save(res.Session); err != nil {
			return err
		}
		fmt.Fprintf(out, "Account created, signed in as %s\n", res.User.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := signedIn(cmd.Context())
		switch {
		case err == errLoggedOut:
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		case err != nil:
			// the stored session is unusable, forget it anyway
			jww.WARN.Printf("[cli] logout: %v", err)
		default:
			if err := client.SignOut(cmd.Context()); err != nil {
				jww.WARN.Printf("[cli] sign out: %v", err)
			}
		}
		if err := sessionFile().Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := signedIn(cmd.Context())
		if err != nil {
			return err
		}
		u, err := client.GetUser(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", u.Email, u.ID)
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		return showProfile(cmd, svc)
	},
}

func showProfile(cmd *cobra.Command, svc *chat.Service) error {
	p, err := svc.MyProfile(cmd.Context())
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (no profile yet, run `wachat profile set`)\n", svc.Me())
		return nil
	}
	render.Profiles(cmd.OutOrStdout(), []chat.Profile{*p})
	return nil
}

// passwordFlag reads --password, falling back to one line of stdin.
func passwordFlag(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringP("email", "e", "", "Account email")
		c.Flags().StringP("password", "p", "", "Account password, read from stdin when omitted")
	}
	signupCmd.Flags().StringP("username", "u", "", "Username: 3-20 lowercase letters, digits or _")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
