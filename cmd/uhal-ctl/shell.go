package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

const shellHelp = `
IPbus Commands:
  Registers:
    read <addr> [count]          - Read a register or an incrementing block
    fifo <addr> <count>          - Read a non-incrementing block
    write <addr> <value>...      - Write one or more consecutive registers
    mwrite <addr> <value> <mask> - Write the bits selected by mask
    rmw-bits <addr> <and> <or>   - Read-modify-write with bit masks
    rmw-sum <addr> <addend>      - Read-modify-write with an addend
    info                         - Read reserved address info (IPbus 1.3)

  Dispatch:
    queue [on|off]               - Show or switch batched mode
    dispatch                     - Send everything queued

  Targets:
    devices [pattern]            - List devices from the connections file
    use <device-id>              - Select a device
    ping                         - Check the target answers
    status                       - Show the current target

  General:
    help                         - Show this help
    quit                         - Exit

  Values accept 0x (hex), 0b (binary) and 0o (octal) prefixes.`

// shell is the interactive front end.
type shell struct {
	s  *session
	rl *readline.Instance
}

func newShell() (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "uhal> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("read"), readline.PcItem("fifo"),
			readline.PcItem("write"), readline.PcItem("mwrite"),
			readline.PcItem("rmw-bits"), readline.PcItem("rmw-sum"),
			readline.PcItem("info"),
			readline.PcItem("queue", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("dispatch"), readline.PcItem("devices"),
			readline.PcItem("use"), readline.PcItem("ping"),
			readline.PcItem("status"), readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl}, nil
}

// Close restores the terminal.
func (sh *shell) Close() error {
	return sh.rl.Close()
}

// Stdout coordinates log output with the prompt.
func (sh *shell) Stdout() io.Writer {
	return sh.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends.
func (sh *shell) Run(ctx context.Context) {
	fmt.Fprintln(sh.rl.Stdout(), shellHelp)

	for {
		if ctx.Err() != nil {
			return
		}

		line, err := sh.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(sh.rl.Stdout(), "Exiting...")
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "help", "?":
			fmt.Fprintln(sh.rl.Stdout(), shellHelp)
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(sh.rl.Stdout(), "Exiting...")
			return
		}

		if err := sh.s.exec(ctx, fields); err != nil {
			fmt.Fprintf(sh.rl.Stdout(), "Error: %v\n", err)
		}
	}
}
