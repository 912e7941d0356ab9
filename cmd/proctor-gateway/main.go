package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/davidahmann/proctor/internal/api"
	"github.com/davidahmann/proctor/internal/audit"
	"github.com/davidahmann/proctor/internal/audit/pgstore"
	"github.com/davidahmann/proctor/internal/audit/sqlstore"
	"github.com/davidahmann/proctor/internal/auth"
	"github.com/davidahmann/proctor/internal/backend"
	"github.com/davidahmann/proctor/internal/config"
	"github.com/davidahmann/proctor/internal/crypto"
	"github.com/davidahmann/proctor/internal/keys"
	"github.com/davidahmann/proctor/internal/pack"
	"github.com/davidahmann/proctor/internal/pipeline"
	"github.com/davidahmann/proctor/internal/policy"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newServer(cfg config.Config) (*http.Server, error) {
	policyStore, err := policy.NewStore(cfg.PolicyPath, nil)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	snap := policyStore.Snapshot()

	store, err := openAuditStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	chain, err := audit.NewChain(store, audit.ParseRedactionLevel(snap.RedactionLevel()), nil)
	if err != nil {
		return nil, fmt.Errorf("open audit chain: %w", err)
	}
	if _, err := chain.Append(audit.EntryStartup, "", map[string]any{
		"policy_id":      snap.Document.PolicyID,
		"policy_version": snap.Document.PolicyVersion,
		"policy_hash":    snap.Hash,
	}); err != nil {
		return nil, fmt.Errorf("record startup: %w", err)
	}

	var registry *keys.Registry
	if cfg.KeysPath != "" {
		records, err := keys.LoadFile(cfg.KeysPath)
		if err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
		registry = keys.NewRegistry(records, cfg.GrantWindow(), chain, nil)
	}

	var packs *pack.Registry
	if cfg.PacksDir != "" {
		packs, err = pack.LoadDir(cfg.PacksDir)
		if err != nil {
			return nil, fmt.Errorf("load packs: %w", err)
		}
		if err := policyStore.EnsureModuleToggles(packs.IDs()); err != nil {
			return nil, fmt.Errorf("packs vs policy: %w", err)
		}
	}

	var signer audit.Signer
	if cfg.Audit.SigningKeyPath != "" {
		fileSigner, err := crypto.NewFileSigner(cfg.Audit.SigningKeyPath, cfg.Audit.SigningKeyID)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		log.Printf("audit exports signed with key %s", fileSigner.KeyID())
		signer = fileSigner
	}

	worker := backend.NewHTTPClient(cfg.Backend.WorkerEndpoint, cfg.BackendTimeout())
	var auditor backend.Capability
	if cfg.Backend.AuditorEndpoint != "" {
		auditor = backend.NewHTTPClient(cfg.Backend.AuditorEndpoint, cfg.BackendTimeout())
	}

	var escalations *pipeline.Outbox
	if cfg.Escalation.WebhookURL != "" {
		notifier := pipeline.NewWebhookNotifier(cfg.Escalation.WebhookURL, cfg.BackendTimeout())
		escalations = pipeline.NewOutbox(notifier, chain, nil)
	}

	orch, err := pipeline.New(pipeline.Config{
		Policy:      policyStore,
		Keys:        registry,
		Chain:       chain,
		Packs:       packs,
		Worker:      worker,
		Auditor:     auditor,
		Escalations: escalations,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	h := &api.Handler{
		Auth: auth.NewTokenAuthenticator(cfg.APIToken),
		Service: &api.Service{
			Policy:   policyStore,
			Keys:     registry,
			Chain:    chain,
			Packs:    packs,
			Pipeline: orch,
			Signer:   signer,
		},
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if escalations != nil {
		ctx, cancel := context.WithCancel(context.Background())
		srv.RegisterOnShutdown(cancel)
		go escalations.RunOutboxWorker(ctx, cfg.EscalationPollInterval())
		log.Printf("escalation delivery to %s enabled", cfg.Escalation.WebhookURL)
	}
	return srv, nil
}

func openAuditStore(cfg config.Config) (audit.Store, error) {
	switch cfg.DB.Driver {
	case "sqlite":
		return sqlstore.OpenSQLite(cfg.DB.DSN)
	case "postgres":
		return pgstore.OpenPostgres(cfg.DB.DSN)
	case "":
		log.Printf("no db configured, audit chain is in-memory only")
		return audit.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(cfg config.Config) (*http.Server, error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("proctor-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to proctor config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("PROCTOR_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("PROCTOR_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	cfg.PolicyPath = firstNonEmpty(getenv("PROCTOR_POLICY_PATH"), cfg.PolicyPath, "configs/policy.yaml")
	cfg.APIToken = firstNonEmpty(getenv("PROCTOR_API_TOKEN"), cfg.APIToken, "")
	cfg.Backend.WorkerEndpoint = firstNonEmpty(getenv("PROCTOR_WORKER_ENDPOINT"), cfg.Backend.WorkerEndpoint, "")

	server, err := factory(cfg)
	if err != nil {
		return err
	}

	log.Printf("proctor-gateway listening on %s", cfg.ListenAddr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
