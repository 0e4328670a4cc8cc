package data

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Schemes understood by the storage and cache layers.
const (
	PostgresScheme   = "postgres"
	PostgresqlScheme = "postgresql"
	SqliteScheme     = "sqlite"
	MemScheme        = "mem"
	RedisScheme      = "redis"
	RedissScheme     = "rediss"
	ValkeyScheme     = "valkey"
)

var keyValueDSN = regexp.MustCompile(
	`(?i)^(user=\S+|password=\S+|host=\S+|port=\d+|dbname=\S+|sslmode=\S+)(\s+\S+=\S+)*$`,
)

// A DSN for conveniently handling a URI connection string.
type DSN string

func (d DSN) scheme() string {
	s := string(d)
	idx := strings.Index(s, "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(s[:idx])
}

func (d DSN) IsPostgres() bool {
	switch d.scheme() {
	case PostgresScheme, PostgresqlScheme:
		return true
	case "":
		return keyValueDSN.MatchString(strings.TrimSpace(string(d)))
	default:
		return false
	}
}

// IsSQLite reports whether the DSN names a sqlite database, either through the
// sqlite:// scheme or as a bare file path ending in .db/.sqlite.
func (d DSN) IsSQLite() bool {
	if d.scheme() == SqliteScheme {
		return true
	}
	if d.scheme() != "" {
		return false
	}
	lower := strings.ToLower(string(d))
	return lower == ":memory:" || strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite")
}

func (d DSN) IsDB() bool {
	return d.IsPostgres() || d.IsSQLite()
}

func (d DSN) IsRedis() bool {
	s := d.scheme()
	return s == RedisScheme || s == RedissScheme
}

func (d DSN) IsValkey() bool {
	return d.scheme() == ValkeyScheme
}

func (d DSN) IsMem() bool {
	return d.scheme() == MemScheme || d == ""
}

func (d DSN) IsCache() bool {
	return d.IsMem() || d.IsRedis() || d.IsValkey()
}

// SQLitePath returns the path portion handed to the sqlite driver.
func (d DSN) SQLitePath() string {
	s := string(d)
	if d.scheme() == SqliteScheme {
		s = s[len(SqliteScheme)+len("://"):]
	}
	if s == "" {
		return ":memory:"
	}
	return s
}

func (d DSN) ToURI() (*url.URL, error) {
	return url.Parse(string(d))
}

// WithScheme swaps the URI scheme, used when a valkey:// DSN is handed to a
// client that only understands redis://.
func (d DSN) WithScheme(scheme string) (DSN, error) {
	u, err := d.ToURI()
	if err != nil {
		return "", err
	}
	u.Scheme = scheme
	return DSN(u.String()), nil
}

func (d DSN) GetQuery(key string) string {
	u, err := d.ToURI()
	if err != nil {
		return ""
	}

	return u.Query().Get(key)
}

func (d DSN) String() string {
	return string(d)
}

// Redacted hides the password of a URI DSN so it can be logged.
func (d DSN) Redacted() string {
	u, err := d.ToURI()
	if err != nil || u.User == nil {
		return string(d)
	}
	return u.Redacted()
}

// PostgresKeyValue checks if the DSN is already in key/value form, otherwise
// converts a PostgreSQL URL into it.
func (d DSN) PostgresKeyValue() (string, error) {
	trimmed := strings.TrimSpace(string(d))
	lower := strings.ToLower(trimmed)
	if strings.Contains(trimmed, "=") && !strings.HasPrefix(lower, "postgres://") &&
		!strings.HasPrefix(lower, "postgresql://") {
		return trimmed, nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}

	if u.Scheme != PostgresScheme && u.Scheme != PostgresqlScheme {
		return "", fmt.Errorf("invalid scheme: %s", u.Scheme)
	}

	user := ""
	password := ""
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}

	parts := []string{
		"host=" + u.Hostname(),
		"port=" + port,
		"user=" + user,
		"password=" + password,
		"dbname=" + strings.TrimPrefix(u.Path, "/"),
	}
	for k, vals := range u.Query() {
		for _, v := range vals {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return strings.Join(parts, " "), nil
}
