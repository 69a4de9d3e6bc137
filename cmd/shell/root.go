package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"jobshell/internal/config"
	"jobshell/internal/execute"
	"jobshell/internal/jobs"
	"jobshell/internal/parser"
	"jobshell/internal/shell"
	"jobshell/internal/sigpolicy"
)

var (
	cfgPath string
	debug   bool
	noColor bool
	command string
)

func loadConfig() (*config.Configuration, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(afero.NewOsFs(), path)
}

var rootCmd = &cobra.Command{
	Use:   "jobshell",
	Short: "A job-control shell",
	Long: `jobshell runs pipelines with redirections in the foreground or
background and tracks them in a job table (jobs, fg, bg).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := log.New(io.Discard, "[jobshell] ", 0)
		if debug {
			logger.SetOutput(cmd.ErrOrStderr())
		}

		interactive := command == "" && term.IsTerminal(int(os.Stdin.Fd()))

		var tty *sigpolicy.Terminal
		if interactive {
			tty = sigpolicy.NewTerminal(os.Stdin)
		}
		policy := sigpolicy.New(cfg.ProcessGroups, tty, logger)
		policy.Install()
		defer policy.Uninstall()

		launcher := &execute.Launcher{
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Policy: policy,
			Log:    logger,
		}
		table := jobs.NewTable(jobs.SysReaper{}, cfg.MaxJobs, logger)

		var in lineReader
		exit := func(code int) {
			if in != nil {
				in.Close()
			}
			policy.Uninstall()
			os.Exit(code)
		}

		d := shell.New(table, launcher, os.Stdout, os.Stderr,
			shell.WithLogger(logger),
			shell.WithColor(useColor(cfg)),
			shell.WithExit(exit),
		)

		if command != "" {
			line, err := parser.Parse([]byte(command))
			if err != nil {
				d.Report(err)
				exit(1)
			}
			d.Dispatch(line)
			return nil
		}

		if interactive {
			in, err = newInteractiveReader(cfg)
			if err != nil {
				return err
			}
		} else {
			in = newScriptReader(os.Stdin)
		}
		defer in.Close()

		return repl(d, in, cfg.Notify, interactive)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func useColor(cfg *config.Configuration) bool {
	if noColor || cfg.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// repl reads lines from in until it is exhausted.
func repl(d *shell.Dispatcher, in lineReader, notify, interactive bool) error {
	for {
		if notify {
			d.Notify()
		}

		line, err := in.ReadLine()
		if err == io.EOF {
			if interactive {
				fmt.Println("exit")
			}
			return nil
		}
		if err != nil {
			return err
		}

		parsed, err := parser.Parse(line)
		if err != nil {
			d.Report(err)
			continue
		}
		d.Dispatch(parsed)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config path (default $HOME/"+config.ConfigurationName+")")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "trace launches and job transitions to stderr")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured diagnostics")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single command line and exit")

	rootCmd.AddCommand(configCmd)
}
