// Command raffle-keytool manages the operator key and signs API requests.
//
//	raffle-keytool generate
//	raffle-keytool encrypt --out key.json        (reads the hex key from stdin)
//	raffle-keytool address --key-file key.json
//	raffle-keytool sign --method POST --path /api/tickets --body '{"count":2}'
//
// Passwords and raw keys come from RAFFLE_WALLET_KEY_PASSWORD and
// RAFFLE_WALLET_PRIVATE_KEY when not given as flags.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alanyoungcy/ticketraffle/internal/crypto"
	"github.com/alanyoungcy/ticketraffle/internal/server/middleware"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: raffle-keytool <generate|encrypt|address|sign> [flags]")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "generate":
		return generate(stdout)
	case "encrypt":
		return encrypt(rest, stdin, stdout)
	case "address":
		return address(rest, stdout)
	case "sign":
		return sign(rest, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func generate(stdout io.Writer) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "address:     %s\nprivate key: %s\n", signer.Address().Hex(), key)
	return nil
}

func encrypt(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	out := fs.StringP("out", "o", "", "write the encrypted key to this file (default stdout)")
	password := fs.String("password", os.Getenv("RAFFLE_WALLET_KEY_PASSWORD"), "encryption password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		return errors.New("encrypt: a password is required")
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("encrypt: read key: %w", err)
	}
	data, err := crypto.EncryptKey(strings.TrimSpace(line), *password)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("encrypt: write %s: %w", *out, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

// keyFlags registers the flags that locate a key and returns a loader.
func keyFlags(fs *flag.FlagSet) func() (*crypto.Signer, error) {
	raw := fs.String("key", os.Getenv("RAFFLE_WALLET_PRIVATE_KEY"), "hex private key")
	file := fs.String("key-file", os.Getenv("RAFFLE_WALLET_ENCRYPTED_KEY_PATH"), "encrypted key file")
	password := fs.String("password", os.Getenv("RAFFLE_WALLET_KEY_PASSWORD"), "key file password")
	return func() (*crypto.Signer, error) {
		pk, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    *raw,
			EncryptedKeyPath: *file,
			KeyPassword:      *password,
		})
		if err != nil {
			return nil, err
		}
		return crypto.NewSignerFromKey(pk), nil
	}
}

func address(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	load := keyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := load()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, signer.Address().Hex())
	return nil
}

// sign prints the authentication headers for one API request as JSON.
func sign(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	load := keyFlags(fs)
	method := fs.String("method", "POST", "HTTP method")
	path := fs.String("path", "/api/tickets", "request path")
	body := fs.String("body", "", "exact request body")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := load()
	if err != nil {
		return err
	}

	now := time.Now()
	sig, err := signer.SignRequest(*method, *path, now, []byte(*body))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]string{
		middleware.HeaderAddress:   signer.Address().Hex(),
		middleware.HeaderTimestamp: fmt.Sprint(now.Unix()),
		middleware.HeaderSignature: sig,
	})
}
