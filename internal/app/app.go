package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"socratic-go/internal/auth"
	"socratic-go/internal/config"
	"socratic-go/internal/content"
	"socratic-go/internal/database"
	"socratic-go/internal/encryption"
	"socratic-go/internal/ledger"
	"socratic-go/internal/model"
	"socratic-go/internal/payment"
	"socratic-go/internal/server"
)

// tokenTTL is the lifetime of issued API tokens.
const tokenTTL = 24 * time.Hour

// App is the application layer between the CLI and TokenService.
// It constructs all dependencies from config, exposes high-level operations
// that accept a caller identity, and manages resource lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     ledger.Store
	content   ledger.ContentStore
	encryptor ledger.Encryptor
	rail      ledger.PaymentRail
	service   *ledger.TokenService
	issuer    *auth.TokenIssuer
	logger    ledger.Logger
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "UploadDocument").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	// Optional .env for JWT secret and S3 credentials.
	_ = godotenv.Load()

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating record store: %w", err)
	}

	cs, err := content.NewStoreFromConfig(cfg.Content)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	rail, err := payment.NewRailFromConfig(cfg.Payment)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating payment rail: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	secret := os.Getenv("SOCRATIC_JWT_SECRET")
	if secret == "" {
		secret = "socratic-dev-secret"
	}

	adapter := &slogAdapter{l: logger}
	svc := ledger.NewTokenService(store, rail, feeSchedule(cfg.Fees), cfg.Treasury, ledger.RealClock{}, ledger.UUIDGenerator{}, adapter)

	return &App{
		cfg:       cfg,
		store:     store,
		content:   cs,
		encryptor: enc,
		rail:      rail,
		service:   svc,
		issuer:    auth.NewTokenIssuer([]byte(secret), tokenTTL),
		logger:    adapter,
		logFile:   logFile,
	}, nil
}

// feeSchedule merges config overrides over the default fee schedule.
// Zero values keep the default.
func feeSchedule(fc config.FeesConfig) ledger.FeeSchedule {
	fees := ledger.DefaultFeeSchedule()
	if fc.UploadDocumentCost != 0 {
		fees.UploadDocumentCost = fc.UploadDocumentCost
	}
	if fc.ChatQueryCost != 0 {
		fees.ChatQueryCost = fc.ChatQueryCost
	}
	if fc.QuizGenerationCost != 0 {
		fees.QuizGenerationCost = fc.QuizGenerationCost
	}
	if fc.ShareDocumentCost != 0 {
		fees.ShareDocumentCost = fc.ShareDocumentCost
	}
	if fc.MinimumStakeAmount != 0 {
		fees.MinimumStakeAmount = fc.MinimumStakeAmount
	}
	if fc.TokenExchangeRate != 0 {
		fees.TokenExchangeRate = fc.TokenExchangeRate
	}
	if fc.StakeCooldownSeconds != 0 {
		fees.StakeCooldown = time.Duration(fc.StakeCooldownSeconds) * time.Second
	}
	return fees
}

// SetupKeys generates the encryption key pair, protecting the private key
// with the given passphrase.
func (a *App) SetupKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// InitUser creates (or returns) the account for the given identity.
func (a *App) InitUser(caller string) (*model.Account, error) {
	return a.service.InitializeUser(caller)
}

// GetWallet returns the account snapshot for the given identity.
func (a *App) GetWallet(caller string) (*model.Account, error) {
	return a.service.GetAccount(caller)
}

// Purchase converts amount units of external currency into credits.
func (a *App) Purchase(ctx context.Context, caller string, amount uint64) (*model.Account, error) {
	return a.service.PurchaseTokens(ctx, caller, amount)
}

// UploadDocument reads the file at path, encrypts and stores its content, and
// commits the upload transition. Returns the updated account and the new
// document record.
func (a *App) UploadDocument(caller string, path string, accessLevel uint8) (*model.Account, *model.DocumentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	var plaintext bytes.Buffer
	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(&plaintext, hasher), f); err != nil {
		return nil, nil, fmt.Errorf("reading document: %w", err)
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	var ciphertext bytes.Buffer
	if err := a.encryptor.Encrypt(&plaintext, &ciphertext); err != nil {
		return nil, nil, fmt.Errorf("encrypting document: %w", err)
	}

	if err := a.content.PutContent(contentHash, &ciphertext, int64(ciphertext.Len())); err != nil {
		return nil, nil, fmt.Errorf("storing document content: %w", err)
	}

	acct, err := a.service.GetAccount(caller)
	if err != nil {
		return nil, nil, err
	}
	return a.service.UploadDocument(caller, acct.DocumentsUploaded, contentHash, accessLevel)
}

// DownloadDocument fetches a document's content, decrypts it with the key
// unlocked by passphrase, and writes the plaintext to destPath.
func (a *App) DownloadDocument(owner string, index uint64, passphrase string, destPath string) error {
	doc, err := a.service.GetDocument(owner, index)
	if err != nil {
		return err
	}

	dctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking decryption key: %w", err)
	}

	var ciphertext bytes.Buffer
	if err := a.content.GetContent(doc.ContentHash, &ciphertext); err != nil {
		return fmt.Errorf("fetching document content: %w", err)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	if err := dctx.Decrypt(&ciphertext, out); err != nil {
		return fmt.Errorf("decrypting document: %w", err)
	}
	return nil
}

// ShareDocument changes the access level of the caller's document.
func (a *App) ShareDocument(caller string, owner string, index uint64, accessLevel uint8) (*model.Account, *model.DocumentRecord, error) {
	return a.service.ShareDocument(caller, owner, index, accessLevel)
}

// ListDocuments returns the caller's document records, ordered by index.
func (a *App) ListDocuments(caller string) ([]*model.DocumentRecord, error) {
	return a.service.ListDocuments(caller)
}

// Chat records a metered chat query for the caller.
func (a *App) Chat(caller string, queryText string) (*model.Account, *model.QueryRecord, error) {
	acct, err := a.service.GetAccount(caller)
	if err != nil {
		return nil, nil, err
	}
	return a.service.ChatQuery(caller, acct.QueriesMade, queryText)
}

// Quiz records a metered quiz generation over the given document hash.
func (a *App) Quiz(caller string, documentHash string) (*model.Account, *model.QuizRecord, error) {
	return a.service.GenerateQuiz(caller, documentHash, time.Now())
}

// StakeAdd locks amount credits in a new stake.
func (a *App) StakeAdd(caller string, amount uint64) (*model.Account, *model.StakeRecord, error) {
	return a.service.StakeTokens(caller, amount, time.Now())
}

// StakeRemove unstakes the caller's stake created at the given unix timestamp.
func (a *App) StakeRemove(caller string, stakedAtUnix int64) (*model.Account, *model.StakeRecord, error) {
	return a.service.UnstakeTokens(caller, caller, time.Unix(stakedAtUnix, 0))
}

// ListStakes returns the caller's stake records.
func (a *App) ListStakes(caller string) ([]*model.StakeRecord, error) {
	return a.service.ListStakes(caller)
}

// ListActivity returns the caller's activity log, most recent first.
func (a *App) ListActivity(caller string) ([]*model.ActivityEntry, error) {
	return a.service.ListActivity(caller)
}

// Serve runs the HTTP API server until it fails or the process exits.
func (a *App) Serve() error {
	port := a.cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := server.NewServer(a.service, a.content, a.encryptor, a.issuer, a.cfg.Server.AllowedOrigins, a.logger)
	return srv.ListenAndServe(port)
}

// Close releases all resources.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
