package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"onedbquota/internal/domain"
	"onedbquota/internal/repository"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"Database"`
	Migration MigrationConfig `mapstructure:"Migration"`
	Log       LogConfig       `mapstructure:"Log"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"Driver"`
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
	// Path is the database file when Driver is sqlite3.
	Path string `mapstructure:"Path"`
}

type MigrationConfig struct {
	// Tables lists the quota tables to rewrite: "user", "group".
	Tables     []string `mapstructure:"Tables"`
	VMTable    string   `mapstructure:"VMTable"`
	TempPrefix string   `mapstructure:"TempPrefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"Level"`
	Format string `mapstructure:"Format"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	v.BindEnv("Database.Driver", "DATABASE_DRIVER")
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Database.Path", "DATABASE_PATH")
	v.BindEnv("Log.Level", "LOG_LEVEL")

	v.SetDefault("Database.Driver", repository.DriverPostgres)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Migration.Tables", []string{"user"})
	v.SetDefault("Migration.VMTable", repository.DefaultVMTable)
	v.SetDefault("Migration.TempPrefix", "old_")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "console")

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, xerrors.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Database.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Migration.QuotaTables(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) validate() error {
	switch c.Driver {
	case repository.DriverSQLite:
		if c.Path == "" {
			return xerrors.New("database configuration is incomplete: sqlite3 needs Path")
		}
	case repository.DriverPostgres:
		if c.Host == "" || c.Port == "" || c.User == "" || c.Name == "" {
			return xerrors.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Host, c.Port, c.User, c.Name)
		}
	default:
		return xerrors.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

// GetDSN returns the connection string for sqlx.Connect.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == repository.DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetMigrateURL returns the database URL understood by golang-migrate.
func (c *DatabaseConfig) GetMigrateURL() string {
	if c.Driver == repository.DriverSQLite {
		return "sqlite3://" + c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// QuotaTables resolves Tables into table layouts.
func (c *MigrationConfig) QuotaTables() ([]domain.QuotaTable, error) {
	tables := make([]domain.QuotaTable, 0, len(c.Tables))
	for _, name := range c.Tables {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "user", "users", domain.UserQuotas.Name:
			tables = append(tables, domain.UserQuotas)
		case "group", "groups", domain.GroupQuotas.Name:
			tables = append(tables, domain.GroupQuotas)
		default:
			return nil, xerrors.Errorf("unknown quota table %q", name)
		}
	}
	if len(tables) == 0 {
		return nil, xerrors.New("no quota tables configured")
	}
	return tables, nil
}
