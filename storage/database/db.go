package database

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/linguadesk/staffdesk/core"
	appfs "github.com/linguadesk/staffdesk/fs"
)

const (
	migrationsDir = "migrations"
	maintenanceDB = "postgres"

	pingAttempts = 30
)

// dsn builds the connection URL of dbName, as the admin role when asked and configured.
func dsn(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// connect opens dbName and waits for it to accept connections.
func connect(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, dsn(dbName, admin, conf))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dbName)
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenX opens the application database, waits for it to accept connections and wraps it for sqlx.
func OpenX(conf *core.Config) (*sqlx.DB, error) {
	return connect(conf.Database.Name, false, conf)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	for attempts := 1; attempts <= pingAttempts; attempts++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}
	return errors.Wrap(err, "DB ping timeout")
}

// Bootstrap statements. Names are identifiers and the password a literal: both are quoted.

func createRoleStmt(conf *core.Config) string {
	return "CREATE ROLE " + pq.QuoteIdentifier(conf.Database.User) +
		" LOGIN ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
}

func createDBStmt(conf *core.Config) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name) +
		" OWNER " + pq.QuoteIdentifier(conf.Database.User)
}

// grantStmts let the app role run the migrations (instructors, attendance_records) and use their tables.
func grantStmts(conf *core.Config) []string {
	role := pq.QuoteIdentifier(conf.Database.User)
	return []string{
		"GRANT CONNECT, TEMPORARY ON DATABASE " + pq.QuoteIdentifier(conf.Database.Name) + " TO " + role,
		"GRANT USAGE, CREATE ON SCHEMA public TO " + role,
		"GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO " + role,
		"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT SELECT, INSERT, UPDATE, DELETE ON TABLES TO " + role,
	}
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var ok bool
	if err := db.Get(&ok, query, name); err != nil {
		return false, err
	}
	return ok, nil
}

func createAppRole(db *sqlx.DB, conf *core.Config) error {
	ok, err := exists(db, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app role")
	}
	if !ok {
		if _, err = db.Exec(createRoleStmt(conf)); err != nil {
			return errors.Wrap(err, "creating app role")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	ok, err := exists(db, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !ok {
		if _, err = db.Exec(createDBStmt(conf)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

func grantAppRole(db *sqlx.DB, conf *core.Config) error {
	for _, stmt := range grantStmts(conf) {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "granting app role: %s", stmt)
		}
	}
	return nil
}

// CreateIfNotExist makes sure, as the admin role, that the app role and the attendance
// database exist and that the app role may migrate and use it.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.User == "" {
		return errors.New("database user is not configured")
	}

	admin, err := connect(maintenanceDB, true, conf)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	if err = createAppRole(admin, conf); err != nil {
		return err
	}
	if err = createDB(admin, conf); err != nil {
		return err
	}

	// schema grants are per database
	appDB, err := connect(conf.Database.Name, true, conf)
	if err != nil {
		return err
	}
	defer func() { _ = appDB.Close() }()
	return grantAppRole(appDB, conf)
}

// RunMigration runs a goose command (up, down, status, up-to VERSION...) against the embedded migrations.
func RunMigration(command string, db *sql.DB, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "goose %s", command)
	}
	return nil
}

func Migrate(db *sql.DB) error {
	if err := RunMigration("up", db); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
