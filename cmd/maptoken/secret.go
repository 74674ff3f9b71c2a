package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mandalnilabja/maptoken/internal/storage"
)

const secretUsage = "usage: maptoken secret set NAME  (value is read from stdin)"

// runSecretCommand handles "maptoken secret set NAME".
func runSecretCommand(args []string, in io.Reader) error {
	if len(args) != 2 || args[0] != "set" {
		return errors.New(secretUsage)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := setSecret(store, args[1], in); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "secret %q saved\n", args[1])
	return nil
}

// SecretWriter is the part of storage.Storage the secret command needs.
type SecretWriter interface {
	SetSecret(secret *storage.Secret) error
}

func setSecret(store SecretWriter, name string, in io.Reader) error {
	value, err := readLine(bufio.NewReader(in))
	if err != nil {
		return fmt.Errorf("failed to read secret value: %w", err)
	}
	if value == "" {
		return errors.New("secret value is empty")
	}
	if err := store.SetSecret(&storage.Secret{Name: name, Value: value}); err != nil {
		return fmt.Errorf("failed to save secret %q: %w", name, err)
	}
	return nil
}
