// Package hostcmd maps text command lines onto the port manager. It is the
// command layer of the interactive shell: one line in, one Result out, with
// listener events interleaved on the same Output.
package hostcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

type command struct {
	usage string
	args  int
	run   func(ctx context.Context, args []string) (any, error)
}

// Dispatcher runs command lines against a manager
type Dispatcher struct {
	m        *manager.Manager
	commands map[string]command
}

// ReadResult is the reply to a read command
type ReadResult struct {
	Data []byte `json:"data"`
	Size int    `json:"size"`
	Text string `json:"text"`
}

// Lines is the reply to a signals command
type Lines struct {
	CTS bool `json:"cts"`
	DSR bool `json:"dsr"`
	RI  bool `json:"ri"`
	DCD bool `json:"dcd"`
	RTS bool `json:"rts"`
	DTR bool `json:"dtr"`
}

func New(m *manager.Manager) *Dispatcher {
	d := &Dispatcher{m: m}
	d.commands = map[string]command{
		"ports":          {"ports", 0, d.ports},
		"ports-direct":   {"ports-direct", 0, d.portsDirect},
		"managed":        {"managed", 0, d.managed},
		"open":           {"open <port> [baud] [data-bits] [parity] [stop-bits] [flow-control] [timeout]", 1, d.open},
		"close":          {"close <port>", 1, d.close},
		"close-all":      {"close-all", 0, d.closeAll},
		"force-close":    {"force-close <port>", 1, d.forceClose},
		"listen":         {"listen <port> [timeout] [size] [immediate|windowed]", 1, d.listen},
		"stop":           {"stop <port>", 1, d.stop},
		"cancel":         {"cancel <port>", 1, d.cancel},
		"read":           {"read <port> [timeout] [size]", 1, d.read},
		"write":          {"write <port> <text...>", 2, d.write},
		"write-hex":      {"write-hex <port> <hex...>", 2, d.writeHex},
		"baud":           {"baud <port> <rate>", 2, d.baud},
		"data-bits":      {"data-bits <port> <5-8>", 2, d.dataBits},
		"parity":         {"parity <port> <none|odd|even>", 2, d.parity},
		"stop-bits":      {"stop-bits <port> <1|2>", 2, d.stopBits},
		"flow-control":   {"flow-control <port> <none|software|hardware>", 2, d.flowControl},
		"timeout":        {"timeout <port> <duration>", 2, d.timeout},
		"rts":            {"rts <port> <state>", 2, d.rts},
		"dtr":            {"dtr <port> <state>", 2, d.dtr},
		"cts":            {"cts <port>", 1, d.signal(d.m.ReadClearToSend)},
		"dsr":            {"dsr <port>", 1, d.signal(d.m.ReadDataSetReady)},
		"ri":             {"ri <port>", 1, d.signal(d.m.ReadRingIndicator)},
		"cd":             {"cd <port>", 1, d.signal(d.m.ReadCarrierDetect)},
		"signals":        {"signals <port>", 1, d.signals},
		"bytes-to-read":  {"bytes-to-read <port>", 1, d.queue(d.m.BytesToRead)},
		"bytes-to-write": {"bytes-to-write <port>", 1, d.queue(d.m.BytesToWrite)},
		"clear":          {"clear <port> [input|output|all]", 1, d.clear},
		"break":          {"break <port> <on|off>", 2, d.breakLine},
		"stats":          {"stats <port>", 1, d.stats},
		"help":           {"help", 0, d.help},
	}
	return d
}

// Exec runs one command line. Blank lines return nil, nil.
func (d *Dispatcher) Exec(ctx context.Context, line string) (any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	c, ok := d.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if len(args) < c.args {
		return nil, fmt.Errorf("%w: %s", ErrUsage, c.usage)
	}
	return c.run(ctx, args)
}

// Serve executes lines from r until EOF, "exit" or "quit", writing one
// Result per non-blank line to out
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, out *Output) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		name := strings.Fields(line)[0]
		value, err := d.Exec(ctx, line)
		res := Result{Command: name, OK: err == nil, Result: value}
		if err != nil {
			res.Error = err.Error()
		}
		if err := out.Result(res); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Usage lists every command, sorted by name
func (d *Dispatcher) Usage() []string {
	usages := make([]string, 0, len(d.commands))
	for _, c := range d.commands {
		usages = append(usages, c.usage)
	}
	sort.Strings(usages)
	return usages
}

func (d *Dispatcher) help(context.Context, []string) (any, error) {
	return d.Usage(), nil
}

func (d *Dispatcher) ports(ctx context.Context, _ []string) (any, error) {
	return d.m.AvailablePorts(ctx), nil
}

func (d *Dispatcher) portsDirect(ctx context.Context, _ []string) (any, error) {
	return d.m.AvailablePortsDirect(ctx), nil
}

func (d *Dispatcher) managed(ctx context.Context, _ []string) (any, error) {
	return d.m.ManagedPorts(ctx)
}

func (d *Dispatcher) open(ctx context.Context, args []string) (any, error) {
	opts, err := portOptions(args[1:])
	if err != nil {
		return nil, err
	}
	return nil, d.m.Open(ctx, args[0], opts...)
}

// portOptions parses the optional positional settings of open
func portOptions(args []string) ([]serial.Option, error) {
	parsers := []func(string) (serial.Option, error){
		func(s string) (serial.Option, error) {
			rate, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%w: baud rate %q", serial.ErrInvalidBaudRate, s)
			}
			return serial.WithBaudRate(rate), nil
		},
		func(s string) (serial.Option, error) {
			bits, err := serial.ParseDataBits(s)
			return serial.WithDataBits(bits), err
		},
		func(s string) (serial.Option, error) {
			parity, err := serial.ParseParity(s)
			return serial.WithParity(parity), err
		},
		func(s string) (serial.Option, error) {
			bits, err := serial.ParseStopBits(s)
			return serial.WithStopBits(bits), err
		},
		func(s string) (serial.Option, error) {
			fc, err := serial.ParseFlowControl(s)
			return serial.WithFlowControl(fc), err
		},
		func(s string) (serial.Option, error) {
			timeout, err := parseTimeout(s)
			return serial.WithTimeout(timeout), err
		},
	}
	if len(args) > len(parsers) {
		return nil, fmt.Errorf("%w: too many settings", ErrUsage)
	}

	opts := make([]serial.Option, 0, len(args))
	for i, arg := range args {
		opt, err := parsers[i](arg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func (d *Dispatcher) close(ctx context.Context, args []string) (any, error) {
	return nil, d.m.Close(ctx, args[0])
}

func (d *Dispatcher) closeAll(ctx context.Context, _ []string) (any, error) {
	return nil, d.m.CloseAll(ctx)
}

func (d *Dispatcher) forceClose(ctx context.Context, args []string) (any, error) {
	return nil, d.m.ForceClose(ctx, args[0])
}

func (d *Dispatcher) listen(ctx context.Context, args []string) (any, error) {
	var opts manager.ListenOptions
	var err error
	if len(args) > 1 {
		if opts.Timeout, err = parseTimeout(args[1]); err != nil {
			return nil, err
		}
	}
	if len(args) > 2 {
		if opts.Size, err = parseSize(args[2]); err != nil {
			return nil, err
		}
	}
	if len(args) > 3 {
		if opts.Policy, err = manager.ParsePolicy(args[3]); err != nil {
			return nil, err
		}
	}

	if err := d.m.StartListening(ctx, args[0], opts); err != nil {
		return nil, err
	}
	return map[string]string{
		"read":         manager.ReadEvent(d.m.EventPrefix(), args[0]),
		"disconnected": manager.DisconnectEvent(d.m.EventPrefix(), args[0]),
	}, nil
}

func (d *Dispatcher) stop(ctx context.Context, args []string) (any, error) {
	return nil, d.m.StopListening(ctx, args[0])
}

func (d *Dispatcher) cancel(ctx context.Context, args []string) (any, error) {
	return nil, d.m.CancelRead(ctx, args[0])
}

func (d *Dispatcher) read(ctx context.Context, args []string) (any, error) {
	var opts manager.ReadOptions
	var err error
	if len(args) > 1 {
		if opts.Timeout, err = parseTimeout(args[1]); err != nil {
			return nil, err
		}
	}
	if len(args) > 2 {
		if opts.Size, err = parseSize(args[2]); err != nil {
			return nil, err
		}
	}

	data, err := d.m.Read(ctx, args[0], opts)
	if err != nil {
		return nil, err
	}
	return ReadResult{Data: data, Size: len(data), Text: strings.ToValidUTF8(string(data), "�")}, nil
}

func (d *Dispatcher) write(ctx context.Context, args []string) (any, error) {
	return d.m.WriteString(ctx, args[0], strings.Join(args[1:], " "))
}

func (d *Dispatcher) writeHex(ctx context.Context, args []string) (any, error) {
	data, err := ParseHex(strings.Join(args[1:], ""))
	if err != nil {
		return nil, err
	}
	return d.m.Write(ctx, args[0], data)
}

func (d *Dispatcher) baud(ctx context.Context, args []string) (any, error) {
	rate, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: baud rate %q", serial.ErrInvalidBaudRate, args[1])
	}
	return nil, d.m.SetBaudRate(ctx, args[0], rate)
}

func (d *Dispatcher) dataBits(ctx context.Context, args []string) (any, error) {
	bits, err := serial.ParseDataBits(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.SetDataBits(ctx, args[0], bits)
}

func (d *Dispatcher) parity(ctx context.Context, args []string) (any, error) {
	parity, err := serial.ParseParity(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.SetParity(ctx, args[0], parity)
}

func (d *Dispatcher) stopBits(ctx context.Context, args []string) (any, error) {
	bits, err := serial.ParseStopBits(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.SetStopBits(ctx, args[0], bits)
}

func (d *Dispatcher) flowControl(ctx context.Context, args []string) (any, error) {
	fc, err := serial.ParseFlowControl(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.SetFlowControl(ctx, args[0], fc)
}

func (d *Dispatcher) timeout(ctx context.Context, args []string) (any, error) {
	timeout, err := parseTimeout(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.SetTimeout(ctx, args[0], timeout)
}

func (d *Dispatcher) rts(ctx context.Context, args []string) (any, error) {
	state, err := ParseSignalState(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.WriteRequestToSend(ctx, args[0], state)
}

func (d *Dispatcher) dtr(ctx context.Context, args []string) (any, error) {
	state, err := ParseSignalState(args[1])
	if err != nil {
		return nil, err
	}
	return nil, d.m.WriteDataTerminalReady(ctx, args[0], state)
}

func (d *Dispatcher) signal(get func(context.Context, string) (bool, error)) func(context.Context, []string) (any, error) {
	return func(ctx context.Context, args []string) (any, error) {
		return get(ctx, args[0])
	}
}

func (d *Dispatcher) signals(ctx context.Context, args []string) (any, error) {
	s, err := d.m.ModemSignals(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return Lines{CTS: s.CTS, DSR: s.DSR, RI: s.RI, DCD: s.DCD, RTS: s.RTS, DTR: s.DTR}, nil
}

func (d *Dispatcher) queue(count func(context.Context, string) (uint32, error)) func(context.Context, []string) (any, error) {
	return func(ctx context.Context, args []string) (any, error) {
		return count(ctx, args[0])
	}
}

func (d *Dispatcher) clear(ctx context.Context, args []string) (any, error) {
	selector := ""
	if len(args) > 1 {
		selector = args[1]
	}
	buffer, err := serial.ParseClearBuffer(selector)
	if err != nil {
		return nil, err
	}
	return nil, d.m.ClearBuffer(ctx, args[0], buffer)
}

func (d *Dispatcher) breakLine(ctx context.Context, args []string) (any, error) {
	on, err := ParseSignalState(args[1])
	if err != nil {
		return nil, err
	}
	if on {
		return nil, d.m.SetBreak(ctx, args[0])
	}
	return nil, d.m.ClearBreak(ctx, args[0])
}

func (d *Dispatcher) stats(ctx context.Context, args []string) (any, error) {
	return d.m.Stats(ctx, args[0])
}
