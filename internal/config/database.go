package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"resourcegraph/internal/sqlutil"
)

// Supported values of database.driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "resourcegraph-custom"

// Dialect returns the SQL dialect of the configured driver.
func (d *DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.DialectFor(d.Driver)
}

// DSN returns the data source name for the configured driver.
// A ConnectionString is used as given, with only the parameters the
// application depends on added.
func (d *DatabaseConfig) DSN() (string, error) {
	dialect, err := d.Dialect()
	if err != nil {
		return "", err
	}
	switch dialect.Name {
	case sqlutil.Postgres.Name:
		return d.postgresDSN()
	case sqlutil.SQLite.Name:
		return d.sqliteDSN(), nil
	}
	return d.mysqlDSN(), nil
}

func (d *DatabaseConfig) mysqlDSN() string {
	var dsn string
	if d.ConnectionString != "" {
		dsn = d.ConnectionString
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
	} else {
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	if tlsParam := d.mysqlTLSParam(); tlsParam != "" && !strings.Contains(dsn, "tls=") {
		dsn += "&tls=" + tlsParam
	}
	return dsn
}

func (d *DatabaseConfig) postgresDSN() (string, error) {
	if d.ConnectionString != "" {
		return d.ConnectionString, nil
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	switch d.TLS.Mode {
	case "":
	case "off":
		q.Set("sslmode", "disable")
	case "skip-verify":
		q.Set("sslmode", "require")
	case "verify-ca", "verify-full":
		q.Set("sslmode", d.TLS.Mode)
	default:
		return "", fmt.Errorf("unsupported TLS mode %q", d.TLS.Mode)
	}
	if d.TLS.CAFile != "" {
		q.Set("sslrootcert", d.TLS.CAFile)
	}
	if d.TLS.CertFile != "" {
		q.Set("sslcert", d.TLS.CertFile)
		q.Set("sslkey", d.TLS.KeyFile)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sqliteDSN enables foreign key enforcement, which the write path relies on
// for constraint errors.
func (d *DatabaseConfig) sqliteDSN() string {
	dsn := d.ConnectionString
	if dsn == "" {
		dsn = "file:" + d.Database
	}
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// mysqlTLSParam returns the tls DSN parameter, or "" when TLS is not configured.
func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	}
	return d.TLS.Mode
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening a MySQL connection in verify-ca or
// verify-full mode. Other drivers read TLS settings from the DSN.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	if dialect, err := d.Dialect(); err != nil || dialect.Name != sqlutil.MySQL.Name {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if d.TLS.CertFile != "" || d.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}
