package main

import (
	"context"
	"log"
	"os"

	"github.com/pyoneerc/deadhand/internal/buildinfo"
	"github.com/pyoneerc/deadhand/internal/cli"
	"github.com/pyoneerc/deadhand/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
