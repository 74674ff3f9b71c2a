package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mandalnilabja/maptoken/internal/storage"
)

// adminPasswordEnv seeds the admin password on first run without a prompt.
const adminPasswordEnv = "MAPTOKEN_ADMIN_PASSWORD"

// PasswordStore is the part of storage.Storage the first-run setup needs.
type PasswordStore interface {
	HasAdminPassword() (bool, error)
	SetAdminPasswordHash(hash string) error
}

func ensureAdminPassword(store PasswordStore) error {
	return setupAdminPassword(store, os.Getenv(adminPasswordEnv), os.Stdin, os.Stdout)
}

func setupAdminPassword(store PasswordStore, preset string, in io.Reader, out io.Writer) error {
	hasPassword, err := store.HasAdminPassword()
	if err != nil {
		return fmt.Errorf("failed to check admin password: %w", err)
	}

	if hasPassword {
		return nil
	}

	if preset != "" {
		if !storage.IsValidAdminPassword(preset) {
			return fmt.Errorf("%s must be alphanumeric with at least 8 characters", adminPasswordEnv)
		}
		return saveAdminPassword(store, preset)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              FIRST-TIME SETUP REQUIRED                     ║")
	fmt.Fprintln(out, "╚════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "No admin password configured. Please set one now.")
	fmt.Fprintln(out, "This password protects the Admin API.")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "Enter admin password (alphanumeric, min 8 chars): ")
		password, err := readLine(reader)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		if !storage.IsValidAdminPassword(password) {
			fmt.Fprintln(out, "Password must be alphanumeric with at least 8 characters.")
			fmt.Fprintln(out)
			continue
		}

		fmt.Fprint(out, "Confirm password: ")
		confirm, err := readLine(reader)
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		if password != confirm {
			fmt.Fprintln(out, "Passwords do not match. Please try again.")
			fmt.Fprintln(out)
			continue
		}

		if err := saveAdminPassword(store, password); err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "✓ Admin password saved successfully!")
		fmt.Fprintln(out)
		return nil
	}
}

func saveAdminPassword(store PasswordStore, password string) error {
	hash, err := storage.HashPassword(password, storage.DefaultArgon2Params())
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := store.SetAdminPasswordHash(hash); err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}
	return nil
}

// readLine returns the next trimmed line; a final line without newline is accepted.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
