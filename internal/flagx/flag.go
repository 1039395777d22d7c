// Package flagx lets several components parse their own subset of os.Args
// without tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the flags listed in valued and boolean, preserving
// their order.
//
// Valued flags are accepted as "-d dsn" or "-d=dsn"; a following argument that
// starts with "-" is never taken as the value. Boolean flags are accepted as
// "-k" or "-k=false" and never consume the next argument.
func FilterArgs(args []string, valued []string, boolean ...string) []string {
	withValue := make(map[string]struct{}, len(valued))
	for _, f := range valued {
		withValue[f] = struct{}{}
	}
	switches := make(map[string]struct{}, len(boolean))
	for _, f := range boolean {
		switches[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			_, v := withValue[name]
			_, b := switches[name]
			if v || b {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := switches[arg]; ok {
			filtered = append(filtered, arg)
			continue
		}

		if _, ok := withValue[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// ConfigFilePath returns the JSON config path given with -c or -config, or
// an empty string when neither is present.
func ConfigFilePath() string {
	var path string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return path
}
