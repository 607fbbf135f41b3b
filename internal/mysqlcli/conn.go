package mysqlcli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// ConnConfig is what the mysql client tools need to reach the content
// database.
type ConnConfig struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Password string
	Database string
}

// ParseDSN reads a go-sql-driver DSN such as
// "user:pass@tcp(db:3306)/magazine" or "user@unix(/run/mysqld.sock)/magazine".
func ParseDSN(dsn string) (ConnConfig, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return ConnConfig{}, fmt.Errorf("parse mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return ConnConfig{}, fmt.Errorf("parse mysql dsn: database name is required")
	}

	conn := ConnConfig{
		User:     cfg.User,
		Password: cfg.Passwd,
		Database: cfg.DBName,
	}
	switch cfg.Net {
	case "unix":
		conn.Socket = cfg.Addr
	default:
		host, port, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return ConnConfig{}, fmt.Errorf("parse mysql address %q: %w", cfg.Addr, err)
		}
		conn.Host = host
		conn.Port, err = strconv.Atoi(port)
		if err != nil {
			return ConnConfig{}, fmt.Errorf("parse mysql port %q: %w", port, err)
		}
	}
	return conn, nil
}
