// remotectl is a terminal remote control for media players. It keeps a
// session to the player, prints what the player reports, and sends the
// commands typed on stdin.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/urfave/cli.v1"

	"github.com/Zereker/comm"
	"github.com/Zereker/comm/transport/rfcomm"
	"github.com/Zereker/comm/transport/tcp"
	"github.com/Zereker/comm/transport/ws"
)

var (
	transportFlag = cli.StringFlag{
		Name:   "transport",
		Value:  "tcp",
		Usage:  "tcp, rfcomm or ws",
		EnvVar: "REMOTECTL_TRANSPORT",
	}
	addressFlag = cli.StringFlag{
		Name:   "address",
		Value:  tcp.MDNSPrefix + "_remuco._tcp",
		Usage:  "player address: host:port, mdns:<service>, a Bluetooth device address or a ws:// URL",
		EnvVar: "REMOTECTL_ADDRESS",
	}
	retryFlag = cli.DurationFlag{
		Name:   "retry",
		Value:  10 * time.Second,
		Usage:  "delay between connection attempts",
		EnvVar: "REMOTECTL_RETRY",
	}
	handshakeTimeoutFlag = cli.DurationFlag{
		Name:  "handshake-timeout",
		Value: 2 * time.Second,
		Usage: "how long to wait for the player's hello",
	}
	heartbeatFlag = cli.DurationFlag{
		Name:  "heartbeat",
		Usage: "drop the connection when the player is silent for twice this long, 0 disables it",
	}
	logLevelFlag = cli.StringFlag{
		Name:   "loglevel",
		Value:  "info",
		Usage:  "debug, info, warn or error",
		EnvVar: "REMOTECTL_LOGLEVEL",
	}
	logFileFlag = cli.StringFlag{
		Name:   "logfile",
		Usage:  "write logs to this file, rotated, instead of stderr",
		EnvVar: "REMOTECTL_LOGFILE",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "remote control for media players"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		transportFlag,
		addressFlag,
		retryFlag,
		handshakeTimeoutFlag,
		heartbeatFlag,
		logLevelFlag,
		logFileFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger, closeLog := newLogger(ctx.String(logLevelFlag.Name), ctx.String(logFileFlag.Name))
	defer closeLog()

	provider, err := newProvider(ctx.String(transportFlag.Name), logger)
	if err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	c := comm.NewCommunicator(provider, out,
		comm.RetryIntervalOption(ctx.Duration(retryFlag.Name)),
		comm.CommunicatorLoggerOption(logger),
		comm.ConnOptions(
			comm.HandshakeTimeoutOption(ctx.Duration(handshakeTimeoutFlag.Name)),
			comm.HeartbeatOption(ctx.Duration(heartbeatFlag.Name)),
		),
	)
	if err := c.Connect(ctx.String(addressFlag.Name)); err != nil {
		return err
	}
	defer c.Disconnect()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-signals:
			return nil
		case <-out.stopped:
			return out.err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if cmd.quit {
				return nil
			}
			if cmd.id == 0 {
				continue
			}
			if err := c.Send(cmd.id, cmd.rec); err != nil {
				logger.Warn("send failed", "command", line, "error", err)
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func newProvider(transport string, logger comm.Logger) (comm.Provider, error) {
	switch transport {
	case "tcp":
		return tcp.New(tcp.LoggerOption(logger)), nil
	case "rfcomm":
		return rfcomm.New(logger), nil
	case "ws":
		return ws.New(ws.LoggerOption(logger)), nil
	}
	return nil, errors.Errorf("unknown transport %q", transport)
}

// newLogger logs to stderr, or to a rotated file when path is set.
func newLogger(level, path string) (*slog.Logger, func()) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
			LocalTime:  true,
		}
		w = rotated
		closeFn = func() { _ = rotated.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn
}
