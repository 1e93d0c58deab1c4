package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/modcrafter77/hyperspot/pkg/config"
)

// Dialect identifies the database flavor behind a handle.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Options is the recognized database configuration of a single module,
// decoded from the "database" key of its raw config section.
type Options struct {
	DSN      string            `koanf:"dsn"`
	Server   string            `koanf:"server"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	DBName   string            `koanf:"dbname"`
	Params   map[string]string `koanf:"params"`
	File     string            `koanf:"file"`
	Path     string            `koanf:"path"`
	Pool     config.PoolConfig `koanf:"pool"`
}

// UnknownServerError reports a module referencing a server entry that does not
// exist in the global database section.
type UnknownServerError struct {
	Module string
	Server string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("module %q references unknown database server %q", e.Module, e.Server)
}

// MissingEnvError reports an unset environment variable referenced by a DSN.
type MissingEnvError struct {
	Var string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("environment variable %q referenced by DSN is not set", e.Var)
}

// MissingDBNameError reports a server-style database resolved without a dbname.
type MissingDBNameError struct {
	Module string
}

func (e *MissingDBNameError) Error() string {
	return fmt.Sprintf("module %q: server-style database requires a dbname", e.Module)
}

// InvalidDSNError reports an unparseable DSN.
type InvalidDSNError struct {
	Module string
	Reason string
}

func (e *InvalidDSNError) Error() string {
	return fmt.Sprintf("module %q: invalid DSN: %s", e.Module, e.Reason)
}

// ResolvedDSN is the outcome of merging global and module database settings.
type ResolvedDSN struct {
	Dialect Dialect
	// DSN is the final connection string (postgres) or file path (sqlite).
	DSN  string
	Pool config.PoolConfig
}

// dsnParts is the intermediate merge state. Fields applied later win.
type dsnParts struct {
	dialect  Dialect
	host     string
	port     int
	user     string
	password string
	dbname   string
	params   map[string]string
	// sqlite only
	path string
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} occurrences from the process environment.
func expandEnv(s string) (string, error) {
	var missing string
	out := envVarRe.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarRe.FindStringSubmatch(m)[1]
		v, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", &MissingEnvError{Var: missing}
	}
	return out, nil
}

var atFileRe = regexp.MustCompile(`@file\(([^)]*)\)`)

// ResolveDSN merges the global server entry (when referenced) with the
// module-level options following the precedence
// server dsn -> server fields -> module dsn -> module fields.
func ResolveDSN(module string, opts *Options, servers map[string]config.DBServerConfig, homeDir string) (*ResolvedDSN, error) {
	if opts == nil {
		return nil, nil
	}

	p := &dsnParts{params: map[string]string{}}

	if opts.Server != "" {
		srv, ok := servers[opts.Server]
		if !ok {
			return nil, &UnknownServerError{Module: module, Server: opts.Server}
		}
		if srv.DSN != "" {
			if err := p.applyDSN(module, srv.DSN, homeDir); err != nil {
				return nil, err
			}
		}
		p.applyFields(srv.Host, srv.Port, srv.User, srv.Password, srv.DBName, srv.Params)
	}

	if opts.DSN != "" {
		if err := p.applyDSN(module, opts.DSN, homeDir); err != nil {
			return nil, err
		}
	}
	p.applyFields(opts.Host, opts.Port, opts.User, opts.Password, opts.DBName, opts.Params)

	switch {
	case opts.File != "":
		p.dialect = DialectSQLite
		p.path = filepath.Join(homeDir, module, opts.File)
	case opts.Path != "":
		p.dialect = DialectSQLite
		if filepath.IsAbs(opts.Path) {
			p.path = opts.Path
		} else {
			p.path = filepath.Join(homeDir, opts.Path)
		}
	}

	if p.dialect == "" {
		if p.host == "" && p.dbname == "" && p.user == "" {
			// Nothing configured at all: the module runs without a database.
			return nil, nil
		}
		p.dialect = DialectPostgres
	}

	if p.password != "" {
		pw, err := expandEnv(p.password)
		if err != nil {
			return nil, err
		}
		p.password = pw
	}

	switch p.dialect {
	case DialectSQLite:
		if p.path == "" {
			p.path = filepath.Join(homeDir, module, module+".sqlite")
		}
		return &ResolvedDSN{Dialect: DialectSQLite, DSN: p.path, Pool: opts.Pool}, nil

	case DialectPostgres:
		if p.dbname == "" {
			return nil, &MissingDBNameError{Module: module}
		}
		return &ResolvedDSN{Dialect: DialectPostgres, DSN: p.postgresDSN(), Pool: opts.Pool}, nil
	}

	return nil, &InvalidDSNError{Module: module, Reason: fmt.Sprintf("unsupported dialect %q", p.dialect)}
}

func (p *dsnParts) applyDSN(module, dsn, homeDir string) error {
	expanded, err := expandEnv(dsn)
	if err != nil {
		return err
	}

	if strings.HasPrefix(expanded, "sqlite://") {
		p.dialect = DialectSQLite
		rest := strings.TrimPrefix(expanded, "sqlite://")
		rest = atFileRe.ReplaceAllStringFunc(rest, func(m string) string {
			name := atFileRe.FindStringSubmatch(m)[1]
			if filepath.IsAbs(name) {
				return name
			}
			return filepath.Join(homeDir, module, name)
		})
		if rest != "" && !filepath.IsAbs(rest) {
			rest = filepath.Join(homeDir, module, rest)
		}
		p.path = rest
		return nil
	}

	u, err := url.Parse(expanded)
	if err != nil {
		return &InvalidDSNError{Module: module, Reason: err.Error()}
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		p.dialect = DialectPostgres
	case "":
		return &InvalidDSNError{Module: module, Reason: "missing scheme"}
	default:
		return &InvalidDSNError{Module: module, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	if h := u.Hostname(); h != "" {
		p.host = h
	}
	if ps := u.Port(); ps != "" {
		fmt.Sscanf(ps, "%d", &p.port)
	}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			p.user = name
		}
		if pw, ok := u.User.Password(); ok {
			p.password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		p.dbname = name
	}
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			p.params[k] = vs[0]
		}
	}

	return nil
}

func (p *dsnParts) applyFields(host string, port int, user, password, dbname string, params map[string]string) {
	if host != "" {
		p.host = host
	}
	if port != 0 {
		p.port = port
	}
	if user != "" {
		p.user = user
	}
	if password != "" {
		p.password = password
	}
	if dbname != "" {
		p.dbname = dbname
	}
	for k, v := range params {
		p.params[k] = v
	}
}

func (p *dsnParts) postgresDSN() string {
	host := p.host
	if host == "" {
		host = "localhost"
	}
	port := p.port
	if port == 0 {
		port = 5432
	}

	var userinfo string
	if p.user != "" {
		userinfo = url.User(p.user).String()
		if p.password != "" {
			userinfo = url.UserPassword(p.user, p.password).String()
		}
		userinfo += "@"
	}

	dsn := fmt.Sprintf("postgres://%s%s:%d/%s", userinfo, host, port, p.dbname)
	if len(p.params) > 0 {
		keys := make([]string, 0, len(p.params))
		for k := range p.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		q := url.Values{}
		for _, k := range keys {
			q.Set(k, p.params[k])
		}
		dsn += "?" + q.Encode()
	}
	return dsn
}

// Redact masks the password component of a DSN for logging.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); !has {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// DefaultAcquireTimeout bounds connection establishment when the pool config
// leaves it unset.
const DefaultAcquireTimeout = 10 * time.Second
