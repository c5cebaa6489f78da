package params

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TestDefault checks the out-of-the-box configuration.
func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Fees.Percent != 10 {
		t.Errorf("fee percent = %d, want 10", cfg.Fees.Percent)
	}
	if cfg.Fees.Account == (common.Address{}) {
		t.Error("fee account must not be the zero address")
	}
	if cfg.Node.APIAddr == "" || cfg.Node.DBPath == "" {
		t.Error("node defaults incomplete")
	}
	if cfg.Node.DevAuth {
		t.Error("dev auth must be off by default")
	}
}

// TestLoadFromEnvOverrides checks env vars win over defaults.
func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("FEE_ACCOUNT", "0xAA00000000000000000000000000000000000000")
	t.Setenv("FEE_PERCENT", "3")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("DEV_FUNDS", "0xBB00000000000000000000000000000000000000=1000")

	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Fees.Account != common.HexToAddress("0xAA00000000000000000000000000000000000000") {
		t.Errorf("fee account = %s", cfg.Fees.Account.Hex())
	}
	if cfg.Fees.Percent != 3 {
		t.Errorf("fee percent = %d, want 3", cfg.Fees.Percent)
	}
	if cfg.Node.DBPath != "/tmp/x.db" || cfg.Node.APIAddr != ":9999" {
		t.Errorf("node config = %+v", cfg.Node)
	}
	if !cfg.Node.DevAuth {
		t.Error("dev auth not enabled")
	}
	if len(cfg.DevFunds) != 1 || !cfg.DevFunds[0].Amount.Eq(uint256.NewInt(1000)) {
		t.Errorf("dev funds = %+v", cfg.DevFunds)
	}
}

// TestLoadFromEnvRejectsBadValues checks validation of the hostile cases.
func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FEE_PERCENT", "101")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("fee percent above 100 accepted")
	}
	t.Setenv("FEE_PERCENT", "")

	t.Setenv("FEE_ACCOUNT", "nonsense")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("malformed fee account accepted")
	}
	t.Setenv("FEE_ACCOUNT", "")

	t.Setenv("DEV_FUNDS", "0xBB00000000000000000000000000000000000000")
	if _, err := LoadFromEnv(""); err == nil {
		t.Error("dev funds entry without amount accepted")
	}
}

// TestParseDevFunds checks the grant list format.
func TestParseDevFunds(t *testing.T) {
	funds, err := parseDevFunds("0xAA00000000000000000000000000000000000000=5, 0xBB00000000000000000000000000000000000000=10")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(funds) != 2 {
		t.Fatalf("entries = %d, want 2", len(funds))
	}
	if !funds[0].Amount.Eq(uint256.NewInt(5)) || !funds[1].Amount.Eq(uint256.NewInt(10)) {
		t.Errorf("amounts = %s, %s", funds[0].Amount.Dec(), funds[1].Amount.Dec())
	}

	if _, err := parseDevFunds("0xAA00000000000000000000000000000000000000=notanumber"); err == nil {
		t.Error("non-decimal amount accepted")
	}
	if _, err := parseDevFunds("short=5"); err == nil {
		t.Error("malformed address accepted")
	}
}
