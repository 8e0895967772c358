package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// a .env in the working directory seeds SYNAPSED_* variables; absence
	// is not an error
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
