package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
)

// Fees is the immutable fee configuration of the exchange.
// Both fields are read once at engine construction and never change.
type Fees struct {
	Account common.Address // receives the taker fee on every trade
	Percent uint64         // integer percent, 0..100
}

type Node struct {
	DBPath  string // Pebble database directory
	APIAddr string // HTTP/WebSocket listen address
	LogFile string // optional log file ("" = console only)

	// DevAuth trusts the address field of API requests instead of requiring
	// a recoverable signature. Devnet only.
	DevAuth bool
}

// DevFund is a devnet genesis grant: native value credited to an external
// wallet inside the local asset gateway (not an exchange balance).
type DevFund struct {
	Account common.Address
	Amount  *uint256.Int
}

type Config struct {
	Fees     Fees
	Node     Node
	DevFunds []DevFund
}

func Default() Config {
	return Config{
		Fees: Fees{
			Account: common.HexToAddress("0x00000000000000000000000000000000000Fee00"),
			Percent: 10,
		},
		Node: Node{
			DBPath:  "./data/custodex.db",
			APIAddr: ":8080",
			DevAuth: false,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("FEE_ACCOUNT is not a hex address: %q", v)
		}
		cfg.Fees.Account = common.HexToAddress(v)
	}

	if v := os.Getenv("FEE_PERCENT"); v != "" {
		pct, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("FEE_PERCENT: %w", err)
		}
		if pct > 100 {
			return cfg, fmt.Errorf("FEE_PERCENT out of range: %d", pct)
		}
		cfg.Fees.Percent = pct
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		cfg.Node.DevAuth = v == "dev"
	}

	// Devnet native grants: "0xaddr=amount,0xaddr=amount" (decimal amounts)
	if v := os.Getenv("DEV_FUNDS"); v != "" {
		funds, err := parseDevFunds(v)
		if err != nil {
			return cfg, fmt.Errorf("DEV_FUNDS: %w", err)
		}
		cfg.DevFunds = funds
	}

	return cfg, nil
}

func parseDevFunds(s string) ([]DevFund, error) {
	var funds []DevFund
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addr, amountStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", entry)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("not a hex address: %q", addr)
		}
		amount, err := uint256.FromDecimal(amountStr)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", amountStr, err)
		}
		funds = append(funds, DevFund{
			Account: common.HexToAddress(addr),
			Amount:  amount,
		})
	}
	return funds, nil
}
