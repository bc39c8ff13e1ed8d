package connfactory

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/stratumhq/dbflow/pkg/config"
)

// postgresDSN builds a key=value connection string for pgx.
func postgresDSN(db config.DatabaseConfig) string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		host, port, db.User, db.Database, sslMode)
	if pw := db.Password(); pw != "" {
		dsn += " password=" + pw
	}
	return dsn
}

// sqlServerDSN builds a URL-style connection string for go-mssqldb.
func sqlServerDSN(db config.DatabaseConfig) string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 1433
	}

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if db.User != "" {
		if pw := db.Password(); pw != "" {
			u.User = url.UserPassword(db.User, pw)
		} else {
			u.User = url.User(db.User)
		}
	}
	q := url.Values{}
	if db.Database != "" {
		q.Set("database", db.Database)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
