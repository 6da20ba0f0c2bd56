// Package mint implements the orchestrators that sit on top of crypto,
// cashu and mint/storage: keyset lifecycle, proof validation, blind signing
// and the swap/mint/melt request flows.
package mint

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/satmint/mintcore/crypto"
	"github.com/satmint/mintcore/mint/lightning"
	"github.com/satmint/mintcore/mint/storage"
	"github.com/satmint/mintcore/mint/storage/sqlite"
)

const (
	BOLT11Method = "bolt11"
	// QuoteExpiryMins is how long a freshly created mint or melt quote
	// remains valid for.
	QuoteExpiryMins = 10
	// defaultPendingTTL is how long a proof stays locked to an in-flight
	// melt before the reconciler considers the payment abandoned.
	defaultPendingTTL = 5 * time.Minute
)

// Mint holds everything a running mint needs: the persistence handle, the
// Lightning backend, the in-memory keyset cache and the mint's own NUT-06
// identity.
type Mint struct {
	db              storage.MintDB
	lightningClient lightning.Client
	limits          MintLimits
	pendingTTL      time.Duration
	logger          *slog.Logger
	info            MintInfoConfig

	mu           sync.RWMutex
	keysets      map[string]*crypto.MintKeyset
	activeKeyset *crypto.MintKeyset

	identityPubkey string

	stop chan struct{}
}

// LoadMint opens the configured store, loads or generates the active
// keyset, and derives the mint's NUT-06 identity keypair.
func LoadMint(config Config, lightningClient lightning.Client) (*Mint, error) {
	path := config.MintPath
	if len(path) == 0 {
		path = defaultMintPath()
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	logger, err := setupLogger(path, config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error setting up logger: %v", err)
	}

	db, err := sqlite.InitSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("error starting mint db: %v", err)
	}

	if lightningClient == nil {
		return nil, fmt.Errorf("invalid lightning client")
	}

	mint := &Mint{
		db:              db,
		lightningClient: lightningClient,
		limits:          config.Limits,
		pendingTTL:      defaultPendingTTL,
		logger:          logger,
		info:            config.Info,
		keysets:         make(map[string]*crypto.MintKeyset),
		stop:            make(chan struct{}),
	}

	if err := mint.loadKeysets(config.InputFeePpk); err != nil {
		return nil, fmt.Errorf("error loading keysets: %v", err)
	}
	if err := mint.deactivateOtherKeysets(mint.activeKeyset.Id); err != nil {
		return nil, fmt.Errorf("error deactivating stale keysets: %v", err)
	}

	pubkey, err := mint.loadIdentity()
	if err != nil {
		return nil, fmt.Errorf("error loading mint identity: %v", err)
	}
	mint.identityPubkey = pubkey

	go mint.reconcilePendingMelts()

	return mint, nil
}

// Shutdown stops the background melt reconciler and closes the store.
func (m *Mint) Shutdown() error {
	close(m.stop)
	return m.db.Close()
}

// defaultMintPath returns $HOME/.mintcore/mint.
func defaultMintPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}
	return filepath.Join(homedir, ".mintcore", "mint")
}

func setupLogger(mintPath string, logLevel LogLevel) (*slog.Logger, error) {
	replacer := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	logFile, err := os.OpenFile(filepath.Join(mintPath, "mint.log"), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %v", err)
	}

	logWriter := io.Writer(io.MultiWriter(os.Stdout, logFile))
	level := slog.LevelInfo
	switch logLevel {
	case LogDebug:
		level = slog.LevelDebug
	case LogDisable:
		logWriter = io.Discard
	}

	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replacer,
	})), nil
}

// logInfof formats the message and preserves the caller's source position,
// so the log line points at the orchestrator call site rather than here.
func (m *Mint) logInfof(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logErrorf(format string, args ...any) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelError, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}

func (m *Mint) logDebugf(format string, args ...any) {
	if !m.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelDebug, fmt.Sprintf(format, args...), pcs[0])
	_ = m.logger.Handler().Handle(context.Background(), r)
}
