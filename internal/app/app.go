// Package app wires configuration, storage, the mailbox provider and the
// sync engine into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/ai"
	"github.com/nhle/mail-triage/internal/credential"
	"github.com/nhle/mail-triage/internal/gateway"
	"github.com/nhle/mail-triage/internal/identity"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/mailbox/gmail"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/reconcile"
	"github.com/nhle/mail-triage/internal/store"
	appsync "github.com/nhle/mail-triage/internal/sync"
)

// App holds the long-lived components. Client and Reconciler are nil when
// no usable credentials exist; the scheduler then reports AuthRequired on
// every pass and the gateway works local only.
type App struct {
	Config     *model.AppConfig
	Logger     *zap.Logger
	Store      *store.SQLiteStore
	Account    *model.Account
	Client     mailbox.Client
	Mapper     *identity.Mapper
	Reconciler *reconcile.Reconciler
	Scheduler  *appsync.Scheduler
	Gateway    *gateway.Gateway
	Analyzer   *ai.Analyzer
	Classifier *ai.HTTPClassifier
}

// Open builds an App from cfg.
func Open(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) (*App, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Store: s}

	client, authErr := openClient(ctx, cfg, logger)
	if authErr != nil {
		if !mailbox.IsAuthUnavailable(authErr) {
			s.Close()
			return nil, authErr
		}
		logger.Warn("mailbox credentials unavailable, running local only", zap.Error(authErr))
	}

	acct, err := a.resolveAccount(ctx, client)
	if err != nil {
		s.Close()
		return nil, err
	}
	a.Account = acct
	a.Mapper = identity.NewMapper(s, logger)

	var runner appsync.Runner = authRequired{err: authErr}
	if client != nil {
		a.Client = client
		a.Reconciler = reconcile.New(client, s, a.Mapper, acct, reconcile.Config{
			MaxResults:      cfg.Sync.MaxResults,
			DraftMaxResults: cfg.Sync.DraftMaxResults,
			Timeout:         cfg.Sync.Timeout(),
		}, logger)
		runner = a.Reconciler
	}
	a.Scheduler = appsync.New(runner, cfg.Sync.Interval(), logger)
	a.Gateway = gateway.New(s, a.Client, a.Mapper, acct, cfg.Sync.Timeout(), logger)

	a.Classifier = ai.NewHTTPClassifier(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout())
	a.Analyzer = ai.NewAnalyzer(s, a.Classifier, cfg.AI.BatchSize, logger)

	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// TokenProvider returns the OAuth flow helper for cfg.
func TokenProvider(cfg *model.AppConfig) (*credential.TokenProvider, error) {
	oauthCfg, err := credential.LoadOAuthConfig(cfg.Gmail.CredentialsFile)
	if err != nil {
		return nil, err
	}
	vault, err := credential.OpenVault(filepath.Dir(cfg.Database.Path))
	if err != nil {
		return nil, err
	}
	return credential.NewTokenProvider(oauthCfg, vault, cfg.Gmail.TokenKey), nil
}

// openClient returns a Gmail client, or an AuthError when the OAuth client
// file or the stored token is missing.
func openClient(ctx context.Context, cfg *model.AppConfig, logger *zap.Logger) (mailbox.Client, error) {
	tp, err := TokenProvider(cfg)
	if err != nil {
		return nil, &mailbox.AuthError{Provider: "gmail", Message: "oauth client unavailable", Err: err}
	}
	ts, err := tp.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client, err := gmail.New(ctx, ts, logger.Named("gmail"))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// resolveAccount finds the mirrored account. The configured self address
// wins; otherwise the provider profile names it. Without either, the most
// recently stored account keeps an offline start working.
func (a *App) resolveAccount(ctx context.Context, client mailbox.Client) (*model.Account, error) {
	address := a.Config.Gmail.SelfAddress
	if client != nil {
		profile, err := client.Profile(ctx)
		switch {
		case err == nil && address == "":
			address = profile.Address
		case err != nil:
			a.Logger.Warn("fetching mailbox profile failed", zap.Error(err))
		}
	}
	if address == "" {
		acct, err := a.Store.LatestAccount(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.New("account address unknown: set gmail.self_address or run `mailtriage auth`")
		}
		if err != nil {
			return nil, fmt.Errorf("loading stored account: %w", err)
		}
		a.Logger.Warn("account address unknown, using stored account", zap.String("address", acct.Address))
		return acct, nil
	}

	return a.Store.EnsureAccount(ctx, model.Account{
		Provider:   "gmail",
		Address:    address,
		AuthMethod: "oauth2",
	})
}

// authRequired stands in for the reconciler when no credentials exist.
type authRequired struct {
	err error
}

func (r authRequired) Run(context.Context) (reconcile.Result, error) {
	return reconcile.Result{}, r.err
}
