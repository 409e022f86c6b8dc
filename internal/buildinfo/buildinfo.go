// Package buildinfo carries version stamps set with -ldflags -X.
package buildinfo

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
		"go":      runtime.Version(),
	}
}

// String is the one-line form printed by taptimise -v.
func String() string {
	s := "taptimise " + Version
	if Commit != "" {
		s += fmt.Sprintf(" (%s)", Commit)
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s + " " + runtime.Version()
}
