// Package passwd prompts an operator for a password without echo and prints
// its bcrypt hash, e.g. for seeding accounts directly in the database.
package passwd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/videotube/internal/server/auth"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var ErrMismatch = errors.New("passwords do not match")

// GetPassword prints prompt to w and reads a password from the terminal
// without echo. The caller should wipe the returned slice.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// Run asks for a password twice and writes its hash to w.
func Run(w io.Writer, hasher auth.PasswordHasher) error {
	first, err := GetPassword(w, "Enter password: ")
	if err != nil {
		return err
	}
	defer wipe(first)

	second, err := GetPassword(w, "Repeat password: ")
	if err != nil {
		return err
	}
	defer wipe(second)

	if !bytes.Equal(first, second) {
		return ErrMismatch
	}

	hash, err := hasher.Hash(string(first))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
