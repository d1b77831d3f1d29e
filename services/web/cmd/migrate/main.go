// Command migrate applies the web service schema with goose.
//
//	migrate up|up-by-one|down|redo|reset|status|version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/config"
	"github.com/example/anitrack/internal/platform/logging"
	"github.com/example/anitrack/internal/platform/migrate"
	"github.com/example/anitrack/services/web/migrations"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate COMMAND [ARGS]\n\nCommands:\n  %s\n", strings.Join(migrate.Commands, "\n  "))
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	v := config.NewViper()
	v.SetDefault("LOG_LEVEL", "info")
	log, err := logging.New(v.GetString("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	command := flag.Arg(0)
	if err := migrate.Run(context.Background(), v.GetString("DATABASE_URL"), migrations.FS, command, log, flag.Args()[1:]...); err != nil {
		log.Error("migrate failed", zap.String("command", command), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("migrate done", zap.String("command", command))
}
