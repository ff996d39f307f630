package main

import (
	"errors"
	"fmt"
	"os"
)

const (
	exitSuccess = 0
	exitNoneWon = 1
	exitError   = 2
)

// errNoneWon means the batch ran but no lot was secured.
var errNoneWon = errors.New("no lot was won")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errNoneWon) {
			os.Exit(exitNoneWon)
		}
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
