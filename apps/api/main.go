package main

import (
	"context"
	"expvar"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/kazi/apps/api/echo"
	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/assignment"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	secretsvc "github.com/trezcool/kazi/services/secrets"
	"github.com/trezcool/kazi/storage"
	"github.com/trezcool/kazi/storage/cache"
	"github.com/trezcool/kazi/storage/database"
	sqlxrepos "github.com/trezcool/kazi/storage/database/sqlx"
	"github.com/trezcool/kazi/storage/gitrepo"
	"github.com/trezcool/kazi/storage/localfs"
)

func main() {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("main: %+v", err)
	}
	conf := core.NewConfig(wd)
	expvar.NewString("build").Set(conf.Build)

	logger := newLogger(conf)
	defer logger.Close()

	if err := run(conf, logger); err != nil {
		logger.Fatal("api: startup failed", err)
	}
}

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	std := log.New(os.Stdout, conf.AppName+" API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func run(conf *core.Config, logger core.Logger) error {
	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer db.Close()
	if err := database.Migrate(db.DB); err != nil {
		return errors.Wrap(err, "migrating database")
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	secrets := secretsvc.NewService(conf)
	cacheMan := cache.NewManager(cache.Options{TTL: conf.Storage.CacheTTL, MaxEntries: conf.Storage.CacheMaxEntries})

	repo := sqlxrepos.NewAssignmentRepository(db)
	assignmentSvc := assignment.NewService(conf, repo, mailSvc, newAdapterFactory(conf, cacheMan, secrets))

	validate, translator := core.NewValidator()
	assignment.InitValidators(validate, translator)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(&echoapi.Options{
		Conf:          conf,
		Logger:        logger,
		AssignmentSvc: assignmentSvc,
		Validate:      validate,
		Translator:    translator,
	}, shutdown)

	go func() {
		logger.Info("api: listening on " + conf.Server.Addr())
		app.Start()
	}()

	sig := <-shutdown
	logger.Info("api: shutdown started", sig)
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		return errors.Wrap(err, "stopping server")
	}
	logger.Info("api: shutdown complete")
	return nil
}

// newAdapterFactory resolves the storage adapter backing an assignment.
// Filesystem assignments live under the tenant's storage base; git
// assignments inspect their remote, with credentials unsealed at call time.
func newAdapterFactory(conf *core.Config, cacheMan *cache.Manager, secrets *secretsvc.Service) assignment.AdapterFactory {
	return func(a assignment.Assignment) (storage.Adapter, error) {
		switch a.StorageType {
		case assignment.StorageGit:
			opts := gitrepo.Options{
				URL:     a.GitURL,
				Branch:  a.GitBranch,
				GitBin:  conf.Storage.GitBin,
				Timeout: conf.Storage.GitTimeout,
			}
			if a.GitCredentialID != "" {
				opts.Credentials = newCredentialFunc(conf, secrets, a.GitCredentialID)
			}
			return gitrepo.NewAdapter(opts, cacheMan)
		case assignment.StorageFilesystem:
			base := filepath.Join(assignment.TenantRoot(conf, a.TenantID), filepath.FromSlash(a.BasePath))
			return localfs.NewAdapter(base, cacheMan)
		}
		return nil, errors.Errorf("unknown storage type %q", a.StorageType)
	}
}

// newCredentialFunc loads a sealed credential blob from the credential store
// (config/credentials/<id>.sealed, written by the admin CLI) and opens it.
// The plaintext format is "username:password".
func newCredentialFunc(conf *core.Config, secrets *secretsvc.Service, id string) gitrepo.CredentialFunc {
	return func(ctx context.Context) (gitrepo.Credentials, error) {
		sealed, err := os.ReadFile(filepath.Join(conf.WorkDir, "config", "credentials", id+".sealed"))
		if err != nil {
			return gitrepo.Credentials{}, errors.Wrapf(err, "reading credential %s", id)
		}
		plaintext, err := secrets.Open(strings.TrimSpace(string(sealed)))
		if err != nil {
			return gitrepo.Credentials{}, errors.Wrapf(err, "opening credential %s", id)
		}
		parts := strings.SplitN(plaintext, ":", 2)
		creds := gitrepo.Credentials{Username: parts[0]}
		if len(parts) > 1 {
			creds.Password = parts[1]
		}
		return creds, nil
	}
}
