package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/clocksim/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: "`run` starts the machines, lets them run for the given duration " +
		"and writes one trace file per machine into the output directory.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(
			cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSimulation(ctx, cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.Float64("duration", time.Duration(d.Duration).Seconds(),
		"Run duration in seconds")
	f.Int("nodes", d.Nodes, "Number of machines")
	f.Int("max-tick-rate", d.MaxTickRate,
		"Tick rates are drawn between 1 and this value")
	f.Int("internal-min", d.InternalMin, "Lower bound of the internal event range")
	f.Int("internal-max", d.InternalMax, "Upper bound of the internal event range")
	f.Int("base-port", d.BasePort, "Port of machine 0, machine i uses base+i")
	f.String("host", d.Host, "Host the machines bind to")
	f.String("out", d.OutputDir, "Directory the traces are written into")
	f.Int64("seed", d.Seed, "Random seed, 0 seeds from the wall clock")
	f.String("db", d.DB, "Record every event into this SQLite database")
	f.Bool("monitor", d.Monitor, "Serve the state of the run over HTTP")
	f.Int("monitor-port", d.MonitorPort,
		"Port of the monitor, a random port is used if not set")
	f.Bool("open-browser", d.OpenBrowser, "Open the monitor in a browser")
	f.BoolP("verbose", "v", d.Verbose, "Print every event to stderr")
	f.String("config", "", "YAML file with the run parameters")
}

// loadConfig merges, from lowest to highest precedence, the defaults, the
// YAML file, .env, CLOCKSIM_* variables and the flags given on the command
// line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	f := cmd.Flags()

	path, _ := f.GetString("config")
	if path != "" {
		err := cfg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
	}

	err := cfg.LoadEnv(".env")
	if err != nil {
		return cfg, err
	}

	if f.Changed("duration") {
		secs, _ := f.GetFloat64("duration")
		cfg.Duration = config.Duration(secs * float64(time.Second))
	}

	setInt(cmd, "nodes", &cfg.Nodes)
	setInt(cmd, "max-tick-rate", &cfg.MaxTickRate)
	setInt(cmd, "internal-min", &cfg.InternalMin)
	setInt(cmd, "internal-max", &cfg.InternalMax)
	setInt(cmd, "base-port", &cfg.BasePort)
	setInt(cmd, "monitor-port", &cfg.MonitorPort)
	setString(cmd, "host", &cfg.Host)
	setString(cmd, "out", &cfg.OutputDir)
	setString(cmd, "db", &cfg.DB)
	setBool(cmd, "monitor", &cfg.Monitor)
	setBool(cmd, "open-browser", &cfg.OpenBrowser)
	setBool(cmd, "verbose", &cfg.Verbose)

	if f.Changed("seed") {
		cfg.Seed, _ = f.GetInt64("seed")
	}

	return cfg, nil
}

func setInt(cmd *cobra.Command, name string, p *int) {
	if cmd.Flags().Changed(name) {
		*p, _ = cmd.Flags().GetInt(name)
	}
}

func setString(cmd *cobra.Command, name string, p *string) {
	if cmd.Flags().Changed(name) {
		*p, _ = cmd.Flags().GetString(name)
	}
}

func setBool(cmd *cobra.Command, name string, p *bool) {
	if cmd.Flags().Changed(name) {
		*p, _ = cmd.Flags().GetBool(name)
	}
}

func runSimulation(
	ctx context.Context,
	cmd *cobra.Command,
	cfg config.Config,
) error {
	s, err := cfg.Builder().Build()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting simulation %s with %d machines...\n",
		s.ID(), cfg.Nodes)
	fmt.Fprintf(out, "Clock rates will be between 1 and %d\n", cfg.MaxTickRate)
	fmt.Fprintf(out, "Internal event range: (%d, %d)\n",
		cfg.InternalMin, cfg.InternalMax)

	err = s.Run(ctx)

	if name := s.RecorderFileName(); name != "" {
		fmt.Fprintf(out, "Events recorded in %s\n", name)
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out,
		"Simulation completed. Check logs in the '%s' directory.\n",
		s.OutputDir())

	return nil
}
