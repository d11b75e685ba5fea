// Package buildinfo carries version metadata stamped at link time, e.g.
//
//	go build -ldflags "-X poigraph/internal/buildinfo.Version=v1.2.0"
package buildinfo

import "runtime"

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    return map[string]string{
        "service": "poigraph",
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// String renders a one-line version banner for the CLI.
func String() string {
    s := "poigraph " + Version
    if Commit != "" {
        s += " (" + Commit + ")"
    }
    if BuiltAt != "" {
        s += " built " + BuiltAt
    }
    return s
}
