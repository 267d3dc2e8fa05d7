package main

import (
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/driftdata/driftsync/cmd"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "driftsync",
		Usage: "Driftsync data replication scheduler",
		Commands: []*cli.Command{
			cmd.SchedulerCommand,
			cmd.MigrateCommand,
			cmd.HealthCheckCommand,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		// log fatal so we exit with the proper exit code, this is important for containerized deployment health checks
		logging.Log.WithError(err).Fatal("runtime error")
	}
}
