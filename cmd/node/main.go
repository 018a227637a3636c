package main

import (
	"context"
	"log"
	"os"

	"github.com/homebase-id/odin-core-sub020/internal/buildinfo"
	"github.com/homebase-id/odin-core-sub020/internal/config"
	"github.com/homebase-id/odin-core-sub020/internal/node"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := node.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
