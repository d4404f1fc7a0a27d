// Package config provides configuration loading for the point-of-sale tools.
//
// Configuration is a single YAML document. Values are resolved in this
// order, later sources winning:
//   - built-in defaults (Default)
//   - the YAML file passed to LoadFile
//   - POS_* environment variables, optionally seeded from a .env file
//   - command-line flags, applied by the caller
//
// The file is data only. Menu prices are decimals, never floats.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDatabase    = "POS_DATABASE"
	EnvReceiptsDir = "POS_RECEIPTS_DIR"
	EnvBackupDir   = "POS_BACKUP_DIR"
	EnvHTTPAddr    = "POS_HTTP_ADDR"
)

// Config is the master configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// ReceiptsDir is where checkout writes receipt files and where import
	// looks for them.
	ReceiptsDir string `yaml:"receipts_dir"`

	// BackupDir receives purge backups.
	BackupDir string `yaml:"backup_dir"`

	// Header is the first line of every receipt.
	Header string `yaml:"header"`

	// CurrencySymbol prefixes every rendered amount.
	CurrencySymbol string `yaml:"currency_symbol"`

	// HTTP configures the local adapter.
	HTTP HTTPConfig `yaml:"http"`

	// Menu is the product catalog, grouped by category.
	Menu []Category `yaml:"menu"`

	// Employees maps a lower-case username to display details.
	// Credentials belong to the authentication service, not here.
	Employees map[string]Employee `yaml:"employees"`
}

// HTTPConfig configures the local HTTP adapter.
type HTTPConfig struct {
	// Addr must be a loopback address.
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`
}

// Category is one menu section.
type Category struct {
	Name  string     `yaml:"name"`
	Items []MenuItem `yaml:"items"`
}

// MenuItem is one sellable product.
type MenuItem struct {
	Code  string          `yaml:"code"`
	Name  string          `yaml:"name"`
	Price decimal.Decimal `yaml:"price"`
}

// Employee holds display details for an operator.
type Employee struct {
	Name string `yaml:"name"`
}

// CatalogItem is a catalog lookup result.
type CatalogItem struct {
	Name  string
	Price decimal.Decimal
}

func item(code, name string, price int64) MenuItem {
	return MenuItem{Code: code, Name: name, Price: decimal.NewFromInt(price)}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:       "pos.db",
		ReceiptsDir:    "receipts",
		BackupDir:      "backups",
		Header:         "POS System Management",
		CurrencySymbol: "₱",
		HTTP:           HTTPConfig{Addr: "127.0.0.1:8080"},
		Menu: []Category{
			{Name: "Student Meals", Items: []MenuItem{
				item("AR", "Adobo Rice Bowl", 65),
				item("SR", "Siomai Rice Bowl", 60),
				item("BS", "Burger Steak Bowl", 65),
				item("LS", "Lumpiang Shanghai Bowl", 65),
				item("CS", "Chicken Skin Bowl", 60),
				item("SS", "Sisig Bowl", 65),
			}},
			{Name: "Add-ons", Items: []MenuItem{
				item("R", "Rice", 20),
				item("E", "Egg", 15),
				item("SM", "Siomai (4pcs)", 25),
				item("CH", "Cheese Sticks (7pcs)", 20),
				item("F", "Fries", 25),
			}},
			{Name: "Drinks", Items: []MenuItem{
				item("SG", "Sago't Gulaman", 30),
				item("BJ", "Buko Juice", 30),
				item("CK", "Coke", 25),
				item("RY", "Royal", 25),
				item("SP", "Sprite", 25),
			}},
			{Name: "Shakes", Items: []MenuItem{
				item("MG", "Mango Graham Shake", 45),
				item("WM", "Watermelon Shake", 45),
				item("CM", "Choco Milo Shake", 45),
			}},
		},
		Employees: map[string]Employee{
			"kit": {Name: "Kit"},
		},
	}
}

// LoadFile reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadEnvFile seeds the process environment from a .env file. Variables
// already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from POS_* environment variables.
func (c *Config) ApplyEnv() {
	for env, field := range map[string]*string{
		EnvDatabase:    &c.Database,
		EnvReceiptsDir: &c.ReceiptsDir,
		EnvBackupDir:   &c.BackupDir,
		EnvHTTPAddr:    &c.HTTP.Addr,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}
	if c.ReceiptsDir == "" {
		errs = append(errs, fmt.Errorf("receipts_dir is required"))
	}
	if err := checkLoopback(c.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("http.addr: %w", err))
	}

	seen := make(map[string]string)
	for _, cat := range c.Menu {
		for _, it := range cat.Items {
			code := strings.ToUpper(strings.TrimSpace(it.Code))
			switch {
			case code == "":
				errs = append(errs, fmt.Errorf("menu %q: item %q has no code", cat.Name, it.Name))
			case seen[code] != "":
				errs = append(errs, fmt.Errorf("menu %q: code %s already used in %q", cat.Name, code, seen[code]))
			default:
				seen[code] = cat.Name
			}
			if it.Price.IsNegative() {
				errs = append(errs, fmt.Errorf("menu %q: %s has negative price", cat.Name, code))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func checkLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%s is not a loopback address", addr)
	}
	return nil
}

// Catalog builds the code lookup. Codes are upper-cased.
func (c *Config) Catalog() map[string]CatalogItem {
	lookup := make(map[string]CatalogItem)
	for _, cat := range c.Menu {
		for _, it := range cat.Items {
			lookup[strings.ToUpper(strings.TrimSpace(it.Code))] = CatalogItem{Name: it.Name, Price: it.Price}
		}
	}
	return lookup
}

// EmployeeName resolves a username (any case) to a display name.
func (c *Config) EmployeeName(username string) (string, bool) {
	e, ok := c.Employees[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return "", false
	}
	return e.Name, true
}
