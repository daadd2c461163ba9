package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"memcheetah/config"
	"memcheetah/search"
	"memcheetah/session"

	"github.com/cosiner/argv"
	"github.com/go-delve/liner"
	"github.com/spf13/cobra"
)

const historyFile = "history"

func NewConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive search, refine and freeze session",
		Args:  cobra.NoArgs,
		RunE:  runConsole,
	}
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	proc, err := openProcess(cmd)
	if err != nil {
		return err
	}

	sess := session.New(proc, cfg)
	defer sess.Close()
	sess.Start(cmd.Context())

	c := newConsole(sess, cfg, cmd.OutOrStdout())
	return c.run(cmd.Context())
}

type console struct {
	sess    *session.Session
	cfg     *config.Config
	out     io.Writer
	current session.Handle
	cmds    []command
}

func newConsole(sess *session.Session, cfg *config.Config, out io.Writer) *console {
	return &console{sess: sess, cfg: cfg, out: out, cmds: commands()}
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "memcheetah", historyFile)
}

func (c *console) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(c.complete)

	path := historyPath()
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if path == "" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return
		}
		if f, err := os.Create(path); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(c.out, "Attached to process %d. Type 'help' for list of commands.\n", c.sess.Process().GetPID())

	for {
		input, err := line.Prompt(c.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(c.out, "exit")
			return nil
		}
		if err != nil {
			return fmt.Errorf("prompt for input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if err := c.exec(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(c.out, "Command failed: %s\n", err)
			if errors.Is(err, session.ErrSessionInvalid) {
				return err
			}
		}
	}
}

func (c *console) prompt() string {
	if c.current == 0 {
		return "(mc) "
	}
	return fmt.Sprintf("(mc #%d) ", c.current)
}

func (c *console) complete(line string) (out []string) {
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if strings.HasPrefix(alias, strings.ToLower(line)) {
				out = append(out, alias)
			}
		}
	}
	return out
}

// exec runs one command line. A Ctrl-C while it runs cancels only that command.
func (c *console) exec(ctx context.Context, input string) error {
	c.drainNotices()
	if err := c.sess.CheckAlive(); err != nil {
		return err
	}

	v, err := argv.Argv(input,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return fmt.Errorf("pipes are not supported")
	}
	args := v[0]
	if len(args) == 0 {
		return nil
	}

	cmd, ok := c.find(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return cmd.fn(c, ctx, args[1:])
}

func (c *console) find(name string) (command, bool) {
	name = strings.ToLower(name)
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return command{}, false
}

func (c *console) drainNotices() {
	for {
		select {
		case n := <-c.sess.Notices():
			fmt.Fprintln(c.out, n.String())
		default:
			return
		}
	}
}

func (c *console) progress() search.Option {
	return search.WithProgress(progressPrinter(c.out))
}
