package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/videotube/internal/passwd"
	"github.com/dmitrijs2005/videotube/internal/server/auth"
)

func main() {
	if err := passwd.Run(os.Stdout, auth.NewBcryptHasher(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
