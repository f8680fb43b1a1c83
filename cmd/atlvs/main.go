package main

import (
	"os"
	"strings"

	"atlvs-cli/internal/cli"
)

func isTabPath(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), "/")
	mod, tab, ok := strings.Cut(s, "/")
	return ok && mod != "" && tab != "" && !strings.Contains(tab, "/")
}

// rewriteViewShortcutArgs turns `atlvs projects/tasks ...` into
// `atlvs view projects/tasks ...`. argv excludes the program name.
//
// Cobra treats the first non-flag token as a subcommand, and persistent
// flags may come first, so the first positional token is what counts.
func rewriteViewShortcutArgs(argv []string) []string {
	valueFlags := map[string]bool{
		"--workspace": true,
		"--actor":     true,
		"--db":        true,
		"--backend":   true,
		"--registry":  true,
		"--log-level": true,
	}

	insertAt := func(i int) []string {
		out := make([]string, 0, len(argv)+1)
		out = append(out, argv[:i]...)
		out = append(out, "view")
		return append(out, argv[i:]...)
	}

	for i := 0; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		switch {
		case a == "":
			continue
		case a == "--":
			if i+1 < len(argv) && isTabPath(argv[i+1]) {
				return insertAt(i)
			}
			return argv
		case strings.HasPrefix(a, "-"):
			// --json, --pretty and --flag=value take no separate value.
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if isTabPath(a) {
			return insertAt(i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Exit(cli.Execute(rewriteViewShortcutArgs(os.Args[1:])))
}
