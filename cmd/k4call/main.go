package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/k4"
	"github.com/guseggert/k4/internal/config"
	"github.com/guseggert/k4/invocation"
	"github.com/guseggert/k4/rpc"
	"github.com/guseggert/k4/supervisor"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage renders err for the terminal. Server errors print only the peer's message.
func errorMessage(err error) string {
	var serverErr *rpc.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Message()
	}
	return err.Error()
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a TOML config file. Defaults to the nearest k4call.toml at or above the working directory.",
		},
		&cli.IntFlag{
			Name:  "fd",
			Usage: "The descriptor the supervisor socket is inherited on.",
			Value: rpc.DefaultFD,
		},
		&cli.StringFlag{
			Name:  "context-env",
			Usage: "The environment variable holding the invocation context.",
			Value: "K4_CONTEXT",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level for messages written to stderr.",
			Value: "warn",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "k4call",
		Usage: "call the script supervisor from a shell script",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:      "call",
				Usage:     "call a method and print its JSON result",
				ArgsUsage: "METHOD [key=value ...]",
				Action:    callAction,
			},
			{
				Name:  "spawn",
				Usage: "spawn a script with this process's stdin, stdout and stderr",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "owner", Usage: "The owner of the script.", Required: true},
					&cli.StringFlag{Name: "name", Usage: "The name of the script.", Required: true},
					&cli.BoolFlag{Name: "wait", Usage: "Wait for the script to exit and print its wait result."},
				},
				Action: spawnAction,
			},
			{
				Name:  "signal",
				Usage: "send a signal to a spawned script",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "handle", Usage: "The handle returned by spawn.", Required: true},
					&cli.IntFlag{Name: "signal", Usage: "The signal number.", Value: int(syscall.SIGTERM)},
				},
				Action: signalAction,
			},
			{
				Name:   "context",
				Usage:  "print the invocation context",
				Action: contextAction,
			},
		},
	}
}

// loadConfig merges the config file with any flags set on the command line.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if p := cctx.String("config"); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, _, err = config.FromWorkingDir()
	}
	if err != nil {
		return nil, err
	}
	if cctx.IsSet("fd") {
		cfg.SocketFD = cctx.Int("fd")
	}
	if cctx.IsSet("context-env") {
		cfg.ContextEnv = cctx.String("context-env")
	}
	if cctx.IsSet("log-level") {
		cfg.LogLevel = cctx.String("log-level")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func newClient(cctx *cli.Context) (*k4.Client, error) {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	client, err := k4.NewClient(
		k4.WithFD(cfg.SocketFD),
		k4.WithContextEnv(cfg.ContextEnv),
		k4.WithLogger(log.Named("k4call")),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func commandContext(cctx *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func callAction(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("missing METHOD")
	}
	method := cctx.Args().First()
	args, err := parseArgs(cctx.Args().Tail())
	if err != nil {
		return err
	}

	client, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cctx)
	defer cancel()

	result, err := client.Call(ctx, method, args)
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, result)
}

func spawnAction(cctx *cli.Context) error {
	client, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cctx)
	defer cancel()

	child, err := client.Supervisor.Spawn(ctx, supervisor.SpawnRequest{
		OwnerName: cctx.String("owner"),
		Name:      cctx.String("name"),
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	})
	if err != nil {
		return err
	}
	if !cctx.Bool("wait") {
		return printJSON(cctx.App.Writer, map[string]supervisor.Handle{"handle": child.Handle()})
	}

	res, err := child.Wait(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(cctx.App.Writer, res); err != nil {
		return err
	}
	if code := res.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func signalAction(cctx *cli.Context) error {
	h, err := parseHandle(cctx.String("handle"))
	if err != nil {
		return fmt.Errorf("parsing handle: %w", err)
	}

	client, err := newClient(cctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := commandContext(cctx)
	defer cancel()

	return client.Supervisor.Signal(ctx, h, syscall.Signal(cctx.Int("signal")))
}

func contextAction(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	c, err := invocation.FromEnv(cfg.ContextEnv)
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, c.Raw)
}
