package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittykitkitt/kit/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cat := cfg.Catalog()
	assert.Len(t, cat, 19)
	assert.Equal(t, "Adobo Rice Bowl", cat["AR"].Name)
	assert.True(t, cat["AR"].Price.Equal(decimal.NewFromInt(65)))

	name, ok := cfg.EmployeeName("KIT")
	assert.True(t, ok)
	assert.Equal(t, "Kit", name)
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	// GIVEN: A config file replacing the menu and the receipts dir
	// WHEN: Loading it
	// THEN: File values win; untouched fields keep their defaults

	path := filepath.Join(t.TempDir(), "pos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
receipts_dir: /srv/pos/receipts
currency_symbol: "$"
menu:
  - name: Drinks
    items:
      - {code: ck, name: Coke, price: "25.50"}
      - {code: TEA, name: Iced Tea, price: 30}
`), 0o644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/pos/receipts", cfg.ReceiptsDir)
	assert.Equal(t, "$", cfg.CurrencySymbol)
	assert.Equal(t, "pos.db", cfg.Database)
	assert.Equal(t, "POS System Management", cfg.Header)

	cat := cfg.Catalog()
	require.Len(t, cat, 2)
	assert.True(t, cat["CK"].Price.Equal(decimal.RequireFromString("25.50")), "codes are upper-cased")
	assert.True(t, cat["TEA"].Price.Equal(decimal.NewFromInt(30)))
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: from-file.db\n"), 0o644))
	t.Setenv(config.EnvDatabase, "from-env.db")
	t.Setenv(config.EnvHTTPAddr, "localhost:9090")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, "localhost:9090", cfg.HTTP.Addr)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("POS_BACKUP_DIR=/var/backups/pos\n"), 0o644))

	// Registers cleanup that restores the variable; then unset it so the
	// .env file is the only source.
	t.Setenv(config.EnvBackupDir, "")
	os.Unsetenv(config.EnvBackupDir)

	require.NoError(t, config.LoadEnvFile(envPath))
	require.NoError(t, config.LoadEnvFile(filepath.Join(dir, "missing.env")))

	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "/var/backups/pos", cfg.BackupDir)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Database = ""
	cfg.HTTP.Addr = "0.0.0.0:8080"
	cfg.Menu = append(cfg.Menu, config.Category{Name: "Specials", Items: []config.MenuItem{
		{Code: "ar", Name: "Another Adobo", Price: decimal.NewFromInt(70)},
		{Code: "", Name: "Mystery"},
		{Code: "NEG", Name: "Refund", Price: decimal.NewFromInt(-1)},
	}})

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "database is required")
	assert.Contains(t, msg, "not a loopback address")
	assert.Contains(t, msg, "code AR already used")
	assert.Contains(t, msg, "has no code")
	assert.Contains(t, msg, "negative price")
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("menu: [unclosed"), 0o644))
	_, err = config.LoadFile(bad)
	assert.ErrorContains(t, err, "parsing config file")
}
