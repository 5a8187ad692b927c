package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/clocksim/trace"
)

// ErrInvalidTrace is returned by verify when a trace breaks the rules of a
// completed run.
var ErrInvalidTrace = errors.New("invalid trace")

var verifyCmd = &cobra.Command{
	Use:   "verify <dir>",
	Short: "Check the traces of a run.",
	Long: "`verify <dir>` checks that every machine_*.log file in dir has a " +
		"startup line, a shutdown line and strictly increasing logical clocks.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyDir(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifyDir(out io.Writer, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "machine_*.log"))
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("%w: no machine_*.log in %s", ErrInvalidTrace, dir)
	}

	sort.Strings(files)

	var errs []error
	for _, file := range files {
		summary, err := verifyFile(file)
		if err != nil {
			fmt.Fprintf(out, "%s\tFAIL\t%v\n", filepath.Base(file), err)
			errs = append(errs, fmt.Errorf("%s: %w", file, err))

			continue
		}

		fmt.Fprintf(out,
			"%s\tOK\t%d events (%d internal, %d send, %d receive), "+
				"final clock %d, max queue length %d\n",
			filepath.Base(file), summary.Events, summary.Internal,
			summary.Sends, summary.Receives, summary.LastClock,
			summary.MaxQueueLength)
	}

	return errors.Join(errs...)
}

func verifyFile(path string) (trace.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return trace.Summary{}, err
	}
	defer f.Close()

	summary, err := trace.Verify(f)
	if err != nil {
		return summary, err
	}

	switch {
	case !summary.Started:
		return summary, fmt.Errorf("%w: no startup line", ErrInvalidTrace)
	case !summary.Shutdown:
		return summary, fmt.Errorf("%w: no shutdown line", ErrInvalidTrace)
	}

	return summary, nil
}
