package mint

import (
	"log"
	"os"
	"strconv"

	"github.com/satmint/mintcore/cashu/nuts/nut06"
	"github.com/satmint/mintcore/crypto"
)

// LogLevel controls the verbosity of the mint's logger.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogDebug
	LogDisable
)

type Config struct {
	// MintPath is where the sqlite file and log file live. Defaults to
	// $HOME/.mintcore/mint when empty.
	MintPath string
	// InputFeePpk is the fee, in parts-per-thousand of a sat per input
	// proof, charged for spending a proof from the keyset created at startup.
	InputFeePpk uint
	// MaxOrder is read from MAX_ORDER by GetConfig and defaults to
	// crypto.DefaultMaxOrder. LoadMint does not use it: the keyset it
	// generates always covers crypto.DefaultMaxOrder denominations.
	MaxOrder int
	Limits   MintLimits
	LogLevel LogLevel
	Info     MintInfoConfig
}

type MintMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MeltMethodSettings struct {
	MinAmount uint64
	MaxAmount uint64
}

type MintLimits struct {
	MaxBalance      uint64
	MintingSettings MintMethodSettings
	MeltingSettings MeltMethodSettings
}

// MintInfoConfig holds the caller-supplied, static parts of the mint's
// NUT-06 info document. The dynamic parts (pubkey, disabled flags) are
// filled in by the mint itself.
type MintInfoConfig struct {
	Name            string
	Description     string
	LongDescription string
	Motd            string
	Contact         []nut06.ContactInfo
}

// GetConfig reads mint configuration from the environment, following the
// same variable names a deployment's systemd unit or docker-compose file
// would set.
func GetConfig() Config {
	var inputFeePpk uint
	if v, ok := os.LookupEnv("INPUT_FEE_PPK"); ok {
		fee, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			log.Fatalf("invalid INPUT_FEE_PPK: %v", err)
		}
		inputFeePpk = uint(fee)
	}

	maxOrder := crypto.DefaultMaxOrder
	if v, ok := os.LookupEnv("MAX_ORDER"); ok {
		order, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid MAX_ORDER: %v", err)
		}
		maxOrder = order
	}

	logLevel := LogInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logLevel = LogDebug
	case "disable":
		logLevel = LogDisable
	}

	limits := MintLimits{}
	if v, ok := os.LookupEnv("MAX_BALANCE"); ok {
		maxBalance, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MAX_BALANCE: %v", err)
		}
		limits.MaxBalance = maxBalance
	}
	if v, ok := os.LookupEnv("MINTING_MAX_AMOUNT"); ok {
		maxMint, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MINTING_MAX_AMOUNT: %v", err)
		}
		limits.MintingSettings.MaxAmount = maxMint
	}
	if v, ok := os.LookupEnv("MELTING_MAX_AMOUNT"); ok {
		maxMelt, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid MELTING_MAX_AMOUNT: %v", err)
		}
		limits.MeltingSettings.MaxAmount = maxMelt
	}

	return Config{
		MintPath:    os.Getenv("MINT_PATH"),
		InputFeePpk: inputFeePpk,
		MaxOrder:    maxOrder,
		Limits:      limits,
		LogLevel:    logLevel,
		Info: MintInfoConfig{
			Name:            os.Getenv("MINT_NAME"),
			Description:     os.Getenv("MINT_DESCRIPTION"),
			LongDescription: os.Getenv("MINT_DESCRIPTION_LONG"),
			Motd:            os.Getenv("MINT_MOTD"),
		},
	}
}
