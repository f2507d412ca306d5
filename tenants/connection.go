package tenants

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-gate/internal/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// ConnectionDescriptor locates a tenant's dedicated database. When URL is set it
// wins over the discrete fields.
type ConnectionDescriptor struct {
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"-"`
	TLS      bool   `json:"tls,omitempty"`
	URL      string `json:"-"`
}

// DriverName returns the driver, defaulting to postgres.
func (d ConnectionDescriptor) DriverName() string {
	if d.Driver == "" {
		return DriverPostgres
	}
	return d.Driver
}

func (d ConnectionDescriptor) Validate() error {
	switch d.DriverName() {
	case DriverPostgres, DriverMySQL:
	default:
		return errors.Wrapf(errors.ErrInvalidArgument, "unsupported driver %q", d.Driver)
	}
	if d.URL != "" {
		return nil
	}
	if d.Host == "" || d.Database == "" {
		return errors.Wrapf(errors.ErrInvalidArgument, "host and database are required")
	}
	if d.Port < 0 || d.Port > 65535 {
		return errors.Wrapf(errors.ErrInvalidArgument, "port %d out of range", d.Port)
	}
	return nil
}

// DSN renders the descriptor in the form its driver expects.
func (d ConnectionDescriptor) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	switch d.DriverName() {
	case DriverMySQL:
		port := d.Port
		if port == 0 {
			port = 3306
		}
		tls := "false"
		if d.TLS {
			tls = "true"
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&tls=%s",
			d.User, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(port)), d.Database, tls)
	default:
		port := d.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(port)),
			Path:   "/" + d.Database,
		}
		q := url.Values{}
		if d.TLS {
			q.Set("sslmode", "require")
		} else {
			q.Set("sslmode", "disable")
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
}

// Fingerprint identifies the connection target including credentials, so a
// credential rotation or host migration yields a new value.
func (d ConnectionDescriptor) Fingerprint() string {
	sum := sha256.Sum256([]byte(d.DriverName() + "\x00" + d.DSN()))
	return hex.EncodeToString(sum[:8])
}

// MarshalZerologObject logs the descriptor without credentials.
func (d ConnectionDescriptor) MarshalZerologObject(e *zerolog.Event) {
	e.Str("driver", d.DriverName())
	if d.URL != "" {
		if u, err := url.Parse(d.URL); err == nil {
			e.Str("host", u.Host).Str("database", u.Path)
			return
		}
		e.Str("url", "<unparseable>")
		return
	}
	e.Str("host", d.Host).Int("port", d.Port).Str("database", d.Database).Bool("tls", d.TLS)
}
