package config

import "fmt"

// CLIOptions is the parsed command line (spec.md §6 CLI): `<bin> [-n]
// [-f configfile]`.
type CLIOptions struct {
	Foreground bool
	ConfigFile string
}

// ParseCLI hand-parses args the way the original daemon does (a plain loop
// over argv, not a flag-package grammar) because the required behavior —
// `-?` and any unknown flag print usage and exit 0, not a nonzero error —
// doesn't match what cobra/pflag consider a parse failure. showUsage is
// true whenever the caller should print usage and exit(0); it is not an
// error condition.
func ParseCLI(args []string, defaultConfigFile string) (opts CLIOptions, showUsage bool) {
	opts.ConfigFile = defaultConfigFile

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-n":
			opts.Foreground = true
		case "-f":
			if i+1 >= len(args) {
				return opts, true
			}
			i++
			opts.ConfigFile = args[i]
		case "-?", "-h", "--help":
			return opts, true
		default:
			return opts, true
		}
	}
	return opts, false
}

// Usage returns the text printed for `-?`, a bad flag, or a missing -f
// argument.
func Usage(progName string) string {
	return fmt.Sprintf("usage: %s [-n] [-f configfile]\n", progName)
}
