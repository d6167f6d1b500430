// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

const (
	replPrompt       = "adb> "
	replHistoryFile  = ".adbhost_history"
	replHistoryLimit = 500
)

const replHelp = `Read host requests line by line and run each as one exchange.

Line syntax:
  <command>     read the raw output after OKAY (e.g. host:features)
  !<command>    output is length-prefixed (e.g. !host:version)
  .devices      list ready devices
  .version      print the daemon protocol version
  .help         show this help
  .quit         leave (Ctrl-D works too)

When stdin is not a terminal, lines are read without editing or history and
the exit status reports whether every line succeeded.`

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive host protocol shell",
	Long:  replHelp,
	Args:  cobra.NoArgs,
	RunE:  runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

var errReplQuit = errors.New("quit")

// replLine is one parsed input line
type replLine struct {
	builtin string
	command string
	opts    adb.ExecOptions
}

func parseReplLine(line string) (replLine, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return replLine{}, false
	case strings.HasPrefix(line, "."):
		return replLine{builtin: strings.ToLower(line[1:])}, true
	case strings.HasPrefix(line, "!"):
		return replLine{
			command: strings.TrimSpace(line[1:]),
			opts:    adb.ExecOptions{Output: true, Length: true},
		}, true
	default:
		return replLine{command: line, opts: adb.ExecOptions{Output: true}}, true
	}
}

// evalReplLine runs one line. errReplQuit ends the session.
func evalReplLine(ctx context.Context, srv adb.Server, w io.Writer, line string) error {
	parsed, ok := parseReplLine(line)
	if !ok {
		return nil
	}

	switch parsed.builtin {
	case "":
	case "quit", "exit", "q":
		return errReplQuit
	case "help", "h", "?":
		fmt.Fprintln(w, replHelp)
		return nil
	case "devices":
		list, err := srv.ListDevicesContext(ctx)
		if err != nil {
			return err
		}
		logWarnings(adb.DevicesCommand, list.Warnings)
		fmt.Fprint(w, adb.FormatDeviceTable(list.Devices))
		return nil
	case "version":
		version, err := srv.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command .%s (try .help)", parsed.builtin)
	}

	if parsed.command == "" {
		return errors.New("empty request")
	}
	res, err := srv.ExecContext(ctx, parsed.command, parsed.opts)
	if err != nil {
		return err
	}
	logWarnings(parsed.command, res.Warnings)
	if res.Output == "" {
		fmt.Fprintln(w, "OKAY")
		return nil
	}
	return writeOutput(w, res.Output)
}

// lineReader abstracts interactive and piped input
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// readlineReader edits lines with history on a terminal
type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		r.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (r *readlineReader) Close() error {
	return r.rl.Close()
}

// scannerReader reads piped input
type scannerReader struct {
	scanner *bufio.Scanner
}

func (r *scannerReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error {
	return nil
}

func newLineReader(interactive bool) lineReader {
	if interactive {
		home, _ := os.UserHomeDir()
		rl, err := readline.NewFromConfig(&readline.Config{
			Prompt:                 replPrompt,
			HistoryFile:            filepath.Join(home, replHistoryFile),
			HistoryLimit:           replHistoryLimit,
			DisableAutoSaveHistory: true,
		})
		if err == nil {
			return &readlineReader{rl: rl}
		}
		logger.Debug().Err(err).Msg("readline unavailable, reading plain lines")
	}
	return &scannerReader{scanner: bufio.NewScanner(os.Stdin)}
}

// runReplLoop evaluates lines until EOF or .quit and returns the number of
// failed lines.
func runReplLoop(ctx context.Context, srv adb.Server, in lineReader, out, errOut io.Writer) (int, error) {
	failed := 0
	for {
		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			return failed, nil
		}
		if err != nil {
			return failed, err
		}

		err = evalReplLine(ctx, srv, out, line)
		if errors.Is(err, errReplQuit) {
			return failed, nil
		}
		if err != nil {
			failed++
			fmt.Fprintln(errOut, adb.FormatError(err))
		}
	}
}

func runRepl(cmd *cobra.Command, args []string) error {
	srv, connInfo, err := openServer(cfg)
	if err != nil {
		return err
	}

	interactive := isTerminal(os.Stdin)
	in := newLineReader(interactive)
	defer in.Close()

	if interactive {
		fmt.Fprintf(cmd.OutOrStdout(), "Connected via %s. Type .help for help.\n", connInfo)
	}

	failed, err := runReplLoop(cmd.Context(), srv, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if !interactive && failed > 0 {
		return fmt.Errorf("%d lines failed", failed)
	}
	return nil
}
