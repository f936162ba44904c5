// Package app wires the proof pipeline for the fixture generator: storage,
// DKIM trust anchors, command templates, the proving backend and the
// artifact sink.
package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/emailproof/internal/artifacts"
	"github.com/dmitrijs2005/emailproof/internal/authmsg"
	"github.com/dmitrijs2005/emailproof/internal/command"
	"github.com/dmitrijs2005/emailproof/internal/config"
	"github.com/dmitrijs2005/emailproof/internal/cryptox"
	"github.com/dmitrijs2005/emailproof/internal/dkim"
	"github.com/dmitrijs2005/emailproof/internal/logging"
	"github.com/dmitrijs2005/emailproof/internal/models"
	"github.com/dmitrijs2005/emailproof/internal/pipeline"
	"github.com/dmitrijs2005/emailproof/internal/prover"
	"github.com/dmitrijs2005/emailproof/internal/repositories/dkimkeys"
	"github.com/dmitrijs2005/emailproof/internal/repositories/repomanager"
	"github.com/ethereum/go-ethereum/common"
)

const (
	devKeyBits = 2048
	chain      = "sepolia"
)

// openRepositories is a seam for repomanager.Open.
var openRepositories = repomanager.Open

type App struct {
	config *config.Config
	logger logging.Logger
}

func NewApp(c *config.Config, logger logging.Logger) *App {
	if logger == nil {
		logger = logging.Nop()
	}
	return &App{config: c, logger: logger}
}

// Run signs the sample email with a fresh development key, pins that key in
// the registry, drives one request through the pipeline and writes the
// resulting fixture to the configured output. SIGINT and SIGTERM cancel
// the run.
func (app *App) Run(ctx context.Context, f FixtureFlags, salt cryptox.AccountSalt) (*authmsg.Fixture, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting fixture generation...", "domain", f.Domain, "template_id", f.TemplateID.String())

	db, rm, err := openRepositories(ctx, app.config.DatabaseDSN, app.config.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	key, err := rsa.GenerateKey(rand.Reader, devKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	raw, err := signSample(f.Hash, f.Domain, f.Selector, key)
	if err != nil {
		return nil, fmt.Errorf("sign sample email: %w", err)
	}

	rec, err := dkim.NewKeyRecord(f.Domain, f.Selector, &key.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := dkimkeys.Import(ctx, db, rm.DKIMKeys, rec); err != nil {
		return nil, err
	}

	pl, closeBackend, err := app.newPipeline(db, rm)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeBackend() }()

	req := models.NewRequest("signHash "+f.Hash, models.EmailTxAuth{
		TemplateID:          f.TemplateID,
		Chain:               chain,
		DKIMContractAddress: common.Hash{}.Hex(),
	})
	if err := rm.Requests(db).Create(ctx, req); err != nil {
		return nil, err
	}

	msg, err := pl.Run(ctx, pipeline.Input{RequestID: req.ID, Raw: raw, Salt: salt})
	if err != nil {
		return nil, err
	}

	fixture, err := authmsg.NewFixture(msg, f.Domain, f.Hash)
	if err != nil {
		return nil, err
	}
	data, err := fixture.JSON()
	if err != nil {
		return nil, err
	}

	sink, err := artifacts.ForOutput(ctx, app.config.Output, artifacts.S3Config{
		Region:       app.config.S3Region,
		User:         app.config.S3RootUser,
		Password:     app.config.S3RootPassword,
		BaseEndpoint: app.config.S3BaseEndpoint,
		Bucket:       app.config.S3Bucket,
	})
	if err != nil {
		return nil, err
	}
	if err := sink.Write(ctx, data); err != nil {
		return nil, err
	}

	app.logger.Info(ctx, "fixture written", "request_id", req.ID.String(), "location", sink.Location(), "message_hash", fixture.MessageHash.Hex())
	return fixture, nil
}

func (app *App) newPipeline(db *sql.DB, rm repomanager.RepositoryManager) (*pipeline.Pipeline, func() error, error) {
	c := app.config

	// Pinned keys win; DNS answers everything else.
	keys := dkim.ChainKeySource{rm.DKIMKeys(db), dkim.NewDNSKeySource(nil, c.KeyMaxTTL)}
	verifier := dkim.NewVerifier(dkim.NewCache(keys, c.KeyMaxTTL, app.logger), app.logger)

	templates := command.DefaultRegistry()
	if c.TemplatesPath != "" {
		r, err := command.LoadRegistryFile(c.TemplatesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load templates: %w", err)
		}
		templates = r
	}

	backend, closeBackend, err := newBackend(c)
	if err != nil {
		return nil, nil, fmt.Errorf("prover init error: %w", err)
	}
	coord := prover.NewCoordinator(backend, coordinatorConfig(c), app.logger)

	return pipeline.New(rm.Requests(db), verifier, templates, coord, app.logger), closeBackend, nil
}
