package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the bearer token used for the optimization service",
	Long:  `Login stores the token from --token, or from the first line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := strings.TrimSpace(loginToken)
		if tok == "" {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no token given: use --token or pipe it on stdin")
			}
			tok = strings.TrimSpace(line)
		}
		if tok == "" {
			return errors.New("empty token")
		}
		creds, closer, err := newCredentials(cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer func() { _ = closer() }()
		}
		if err := creds.SetToken(cmd.Context(), tok); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, closer, err := newCredentials(cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			defer func() { _ = closer() }()
		}
		if err := creds.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Bearer token")
}
