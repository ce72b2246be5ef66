// Package cli is the terminal front end: one-shot cobra commands and an
// interactive shell, both rendering the same app components.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"hospital-appointments/app"
	"hospital-appointments/config"
	"hospital-appointments/logging"
)

// runtime is what every command shares once the root has loaded config.
type runtime struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	in     *prompter
	out    io.Writer

	assumeYes bool
}

// NewRootCommand builds the hospctl command tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{v: config.New()}

	root := &cobra.Command{
		Use:           "hospctl",
		Short:         "Find hospitals, book doctors and manage your appointments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return rt.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return newShell(rt).run(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("api", "", "API base URL (default http://localhost:5000)")
	flags.String("state", "", "path of the local state database")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.BoolVarP(&rt.assumeYes, "yes", "y", false, "answer yes to confirmation prompts")
	rt.v.BindPFlag("api.base_url", flags.Lookup("api"))
	rt.v.BindPFlag("state.path", flags.Lookup("state"))
	rt.v.BindPFlag("log.level", flags.Lookup("log-level"))
	rt.v.BindPFlag("log.file", flags.Lookup("log-file"))

	root.AddCommand(
		newShellCommand(rt),
		newSearchCommand(rt),
		newDoctorsCommand(rt),
		newAvailabilityCommand(rt),
		newBookCommand(rt),
		newHistoryCommand(rt),
		newCancelCommand(rt),
		newClearHistoryCommand(rt),
		newLoginCommand(rt, false),
		newLoginCommand(rt, true),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newThemeCommand(rt),
	)
	return root
}

// Execute runs hospctl with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (rt *runtime) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(rt.v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	rt.cfg, rt.logger = cfg, logger
	rt.out = cmd.OutOrStdout()
	rt.in = newPrompter(cmd.InOrStdin(), rt.out)

	a, err := app.New(app.Options{
		Config:    cfg,
		Logger:    logger,
		Confirmer: confirmer{p: rt.in, yes: rt.assumeYes},
		Notifier:  notifier{out: rt.out},
	})
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	rt.app = a
	logger.Debug("hospctl started", zap.String("command", cmd.Name()), zap.String("api", cfg.APIBaseURL))
	return nil
}

func (rt *runtime) teardown() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	rt.logger.Sync()
	rt.app = nil
	return err
}

// prompter reads answers line by line; passwords are read without echo when
// the input is a terminal.
type prompter struct {
	in  io.Reader
	sc  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, sc: bufio.NewScanner(in), out: out}
}

// line prints prompt and returns the next input line. ok is false at EOF.
func (p *prompter) line(prompt string) (string, bool) {
	fmt.Fprint(p.out, prompt)
	if !p.sc.Scan() {
		return "", false
	}
	return p.sc.Text(), true
}

func (p *prompter) terminal() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok || !isTerminal(int(f.Fd())) {
		return 0, false
	}
	return int(f.Fd()), true
}
