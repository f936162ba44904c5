// Command fixturegen signs a sample signHash email with a throwaway key,
// proves it through the pipeline and writes the authorization message
// fixture used by contract tests.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/emailproof/internal/app"
	"github.com/dmitrijs2005/emailproof/internal/config"
	"github.com/dmitrijs2005/emailproof/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	flags, err := app.ParseFixtureFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	salt, err := app.ReadSalt(flags.Salt, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer salt.Destroy()

	if _, err := app.NewApp(cfg, logger).Run(ctx, flags, salt); err != nil {
		log.Fatalf("%v", err)
	}
}
