// Package util holds the small helpers shared by the commands.
package util

import (
	"fmt"
	"os"
)

// Eprintln prints to stderr
func Eprintln(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
}

// Eprintf prints to stderr
func Eprintf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
}

// Fatalln prints to stderr and exits with status 1
func Fatalln(a ...interface{}) {
	Eprintln(a...)
	os.Exit(1)
}
