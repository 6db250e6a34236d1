package main

import (
	"bufio"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/gate"
	"github.com/Spok95/classtrack-portal/internal/session"
)

func readLine(r io.Reader) string {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return strings.TrimSpace(line)
}

func loginCmd(get func() *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				password = readLine(cmd.InOrStdin())
			}
			tok, err := a.client.Login(cmd.Context(), args[0], password)
			if err != nil {
				return fmt.Errorf("%s", apperr.Message(err))
			}
			if err := a.store.Login(cmd.Context(), tok); err != nil {
				return fmt.Errorf("%s", apperr.Message(err))
			}
			id := a.store.Snapshot().Identity
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", id.DisplayName(), id.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func logoutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := get().store.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func describe(s session.Session) string {
	if s.Authenticated() {
		return fmt.Sprintf("%s (%s, id %d)", s.Identity.DisplayName(), s.Identity.Role, s.Identity.ID)
	}
	if s.Notice != "" {
		return fmt.Sprintf("%s: %s", s.Status, s.Notice)
	}
	return s.Status.String()
}

func whoamiCmd(get func() *app) *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show who the stored session belongs to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			err := a.store.Mount(cmd.Context())
			if err != nil && retry && apperr.IsRetriable(err) {
				err = a.store.Retry(cmd.Context())
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(a.store.Snapshot()))
			if apperr.IsRetriable(err) {
				fmt.Fprintln(cmd.ErrOrStderr(), "the portal could not be reached; run again with --retry")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "retry once when the portal is unreachable")
	return cmd
}

func openCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check where the access gate sends you for a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			_ = a.store.Mount(cmd.Context())
			d := gate.Guard(a.store, args[0])
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

// watchCmd follows session changes made by other portalctl invocations.
func watchCmd(get func() *app) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print session changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			a.store.OnChange(func(s session.Session) {
				if s.Status == session.StatusLoading {
					return
				}
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), describe(s))
			})
			_ = a.store.Mount(ctx)
			a.storage.Watch(ctx, every, session.TokenKey)
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 500*time.Millisecond, "poll interval")
	return cmd
}

func confirmer(cmd *cobra.Command, assumeYes bool) func(string) bool {
	return func(prompt string) bool {
		if assumeYes {
			return true
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", prompt)
		ans := strings.ToLower(readLine(cmd.InOrStdin()))
		return ans == "y" || ans == "yes"
	}
}
