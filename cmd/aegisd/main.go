package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

const configEnv = "AEGIS_CONFIG"

// main 是 Aegis Core 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatalf("aegisd 运行失败: %v", err)
	}
}

func newApp() *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to a JSON or YAML config file; secrets may come from the environment alone",
		EnvVars: []string{configEnv},
	}
	return &cli.App{
		Name:  "aegisd",
		Usage: "Authenticated on-chain transfer API",
		Description: `Aegis Core relays payments through smart-contract wallets, manages
agent spending limits, mints identity tokens and keeps a compliance registry,
all signed by a single server-side identity.`,
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API",
				Flags:  []cli.Flag{configFlag},
				Action: serveAction,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending MySQL schema migrations and exit",
				Flags:  []cli.Flag{configFlag},
				Action: migrateAction,
			},
		},
		Action: serveAction,
	}
}
