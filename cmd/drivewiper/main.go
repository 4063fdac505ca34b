package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
	AppName = "drivewiper"

	// Exit codes
	EXIT_SUCCESS = 0
	EXIT_ERROR   = 1
	EXIT_WARNING = 2
)

// exitError несёт код выхода через RunE
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// errIncompleteCleanup: затирание прошло, но часть временных файлов осталась
var errIncompleteCleanup = errors.New("some temporary files could not be deleted")

// globalOptions общие флаги всех команд
type globalOptions struct {
	configPath string
	verbose    bool
}

// streams позволяет тестам подменять stdin/stdout
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func newRootCmd(s streams) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "Wipe the free space of a volume with random data",
		Long:          "Fills all free space of a volume with cryptographically random data, then deletes it again, for one or more rounds.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(s.in)
	rootCmd.SetOut(s.out)
	rootCmd.SetErr(s.err)

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show log output on the console")

	rootCmd.AddCommand(
		newWipeCmd(opts, s),
		newInfoCmd(opts, s),
		newConfigCmd(s),
		newDiagnoseCmd(s),
	)
	return rootCmd
}

// exitCode переводит ошибку команды в код выхода процесса
func exitCode(err error) int {
	if err == nil {
		return EXIT_SUCCESS
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return EXIT_ERROR
}

func main() {
	s := streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}
	err := newRootCmd(s).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
