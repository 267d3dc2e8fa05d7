package cmd

import (
	"context"
	"time"

	"github.com/driftdata/driftsync/internal/heartbeat"
	"github.com/urfave/cli/v2"
)

var HealthCheckCommand = &cli.Command{
	Name:  "healthcheck",
	Usage: "Probe the heartbeat endpoint (for container health checks)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Value:   "http://localhost:9000/",
			Usage:   "Heartbeat URL to probe",
			EnvVars: []string{"DRIFTSYNC_HEALTH_URL"},
		},
		&cli.IntFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   5,
			Usage:   "Timeout in seconds",
			EnvVars: []string{"DRIFTSYNC_HEALTH_TIMEOUT"},
		},
	},
	Action: func(ctx *cli.Context) error {
		timeout := time.Duration(ctx.Int("timeout")) * time.Second
		probeCtx, cancel := context.WithTimeout(ctx.Context, timeout)
		defer cancel()
		return heartbeat.Probe(probeCtx, ctx.String("url"))
	},
}
