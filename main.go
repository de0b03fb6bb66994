package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/meltanolabs/meltano-ui/config"
	"github.com/meltanolabs/meltano-ui/supervisor"
	"github.com/meltanolabs/meltano-ui/workers"
)

const appName = "meltano-ui"

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "supervisor of the local Meltano application stack"
	app.Commands = []cli.Command{
		startCommand(),
		setupCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func startCommand() cli.Command {
	return cli.Command{
		Name:  "start",
		Usage: "starts the compiler, orchestrator, docs, probe and API workers",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "reload",
				Usage: "reload the API server configuration on change",
			},
			cli.IntFlag{
				Name:   "bind-port",
				Usage:  "port to run webserver on",
				EnvVar: "MELTANO_API_PORT",
				Value:  5000,
			},
			cli.StringFlag{
				Name:   "bind",
				Usage:  "the hostname (or IP address) to bind on",
				EnvVar: "MELTANO_API_HOSTNAME",
				Value:  "0.0.0.0",
			},
		},
		Action: runStart,
	}
}

func runStart(c *cli.Context) error {
	logger := logrus.New().WithField("app", appName)

	dir, err := os.Getwd()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	project, err := config.Load(dir)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	uiCfg := config.UIConfig{
		Bind:     c.String("bind"),
		BindPort: c.Int("bind-port"),
	}
	if err := uiCfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	// prime the reaper before any worker capable of spawning
	// subprocesses off the main goroutine is even constructed
	supervisor.Reaper().Prime()

	plan := config.ResolvePlan(os.LookupEnv, c.Bool("reload"))

	sup := supervisor.New(appName, logger)
	for _, nw := range workers.BuildStack(logger, project, plan, uiCfg, sup.WorkerStates) {
		if err := sup.Register(nw.Name, nw.Worker); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}

	stop := sup.StartAll()

	coordinator := supervisor.NewShutdownCoordinator(logger)
	coordinator.Arm(stop)
	defer coordinator.Disarm()

	if sup.WorkerStates()[workers.WorkerAPI] == supervisor.WStateFailed {
		coordinator.Trigger()
		coordinator.Wait()
		return cli.NewExitError("api server failed to start", 1)
	}

	logger.Info("All workers started.")
	coordinator.Wait()
	return nil
}

func setupCommand() cli.Command {
	return cli.Command{
		Name:      "setup",
		Usage:     "generates the ui.cfg file holding the server secret keys",
		ArgsUsage: "<server_name>",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "bits",
				Usage: "strength of each generated secret",
				Value: config.DefaultSecretBits,
			},
			cli.BoolFlag{
				Name:  "overwrite",
				Usage: "accepted for compatibility; an existing ui.cfg is never overwritten",
			},
		},
		Action: runSetup,
	}
}

func runSetup(c *cli.Context) error {
	serverName := c.Args().First()
	if serverName == "" {
		return cli.NewExitError("missing required argument <server_name>", 1)
	}

	dir, err := os.Getwd()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	project, err := config.Load(dir)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	path := project.UICfgPath()
	if err := config.WriteUICfg(path, serverName, c.Int("bits")); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	logrus.Infof("Secrets written to %s", path)
	return nil
}
