package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "embed"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/carbonlake/internal/app"
	"github.com/tigerroll/carbonlake/internal/pipeline"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration bundled into the binary.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// dbProviders returns the DB_ADAPTORS entries, defaulting to every supported dialect.
func dbProviders() []string {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}
	var names []string
	for _, name := range strings.Split(adaptors, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func main() {
	stages := flag.String("stages", "", "comma-separated stages to run (default: all)")
	listStages := flag.Bool("list-stages", false, "print the stage names in pipeline order and exit")
	flag.Parse()

	if *listStages {
		for _, name := range pipeline.StageNames() {
			fmt.Println(name)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping after the current stage...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := app.RunApplication(ctx, app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: embeddedConfig,
		Stages:         pipeline.ParseSelection(*stages),
		DBProviders:    dbProviders(),
	})
	cancel()
	os.Exit(code)
}
