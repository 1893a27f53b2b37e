package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/club-manager/internal/security"
)

var hashIterations int

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password read from stdin",
	Long:  "Read one password line from stdin and print its pbkdf2 hash, suitable for users.password_hash.",
	Args:  cobra.NoArgs,
	RunE:  runHashPassword,
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashIterations, "iterations", security.DefaultIterations, "PBKDF2 iterations (capped)")
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return errors.New("empty password")
	}
	hash, err := security.NewPasswordHasher(hashIterations, nil).Hash(pw)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
