package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/backplane/internal/app"
)

// ExitError is an error with a process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("backplane", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Backplane - a plugin backend runtime.

Usage:
  backplane [options] [CONFIG_PATH...]

Arguments:
  CONFIG_PATH
    A .hcl, .yaml or .yml file, or a directory containing them. Later
    paths override earlier ones.

Options:
`)
		flagSet.PrintDefaults()
	}

	var configs, envFiles stringList
	flagSet.Var(&configs, "config", "Config file or directory. May be repeated.")
	flagSet.Var(&envFiles, "env-file", "Dotenv file loaded before config. May be repeated. Defaults to .env.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	paths := append([]string(nil), configs...)
	paths = append(paths, flagSet.Args()...)
	if len(paths) == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	if len(envFiles) == 0 {
		envFiles = stringList{".env"}
	}

	cfg, err := app.NewConfig(app.Config{
		ConfigPaths: paths,
		EnvFiles:    envFiles,
		LogFormat:   strings.ToLower(*logFormatFlag),
		LogLevel:    strings.ToLower(*logLevelFlag),
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}
