// Package mysqlcli dumps and imports the content database by shelling out to
// the mysql client tools. Credentials are passed through a short-lived option
// file, never on the command line.
package mysqlcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	Conn            ConnConfig
	MySQLBinary     string
	MySQLDumpBinary string
	// TempDir holds the credentials file while a command runs.
	TempDir string
}

// Client runs mysqldump and mysql against one database.
type Client struct {
	logger       zerolog.Logger
	conn         ConnConfig
	mysqlBin     string
	mysqldumpBin string
	tempDir      string
}

func NewClient(logger zerolog.Logger, cfg Config) *Client {
	c := &Client{
		logger:       logger.With().Str("component", "mysqlcli").Logger(),
		conn:         cfg.Conn,
		mysqlBin:     cfg.MySQLBinary,
		mysqldumpBin: cfg.MySQLDumpBinary,
		tempDir:      cfg.TempDir,
	}
	if c.mysqlBin == "" {
		c.mysqlBin = "mysql"
	}
	if c.mysqldumpBin == "" {
		c.mysqldumpBin = "mysqldump"
	}
	return c
}

// CommandError is returned when a client tool exits unsuccessfully.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	detail := e.Stderr
	if detail == "" {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("%s failed: %s", e.Op, detail)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Import pipes the SQL dump at dumpPath into the database.
func (c *Client) Import(ctx context.Context, dumpPath string) error {
	dump, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer dump.Close()

	cnf, cleanup, err := c.writeDefaultsFile()
	if err != nil {
		return err
	}
	defer cleanup()

	c.logger.Info().Str("database", c.conn.Database).Str("dump", dumpPath).Msg("importing database dump")

	cmd := exec.CommandContext(ctx, c.mysqlBin,
		"--defaults-extra-file="+cnf,
		"--binary-mode=1",
		c.conn.Database,
	)
	cmd.Stdin = dump
	return c.run(cmd, "database import")
}

// Dump writes a plain SQL dump of the database to outPath.
func (c *Client) Dump(ctx context.Context, outPath string) error {
	cnf, cleanup, err := c.writeDefaultsFile()
	if err != nil {
		return err
	}
	defer cleanup()

	c.logger.Info().Str("database", c.conn.Database).Str("path", outPath).Msg("dumping database")

	cmd := exec.CommandContext(ctx, c.mysqldumpBin,
		"--defaults-extra-file="+cnf,
		"--single-transaction",
		"--routines",
		"--triggers",
		"--no-tablespaces",
		"--result-file="+outPath,
		c.conn.Database,
	)
	return c.run(cmd, "database dump")
}

func (c *Client) run(cmd *exec.Cmd, op string) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	cerr := &CommandError{Op: op, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cerr.ExitCode = exitErr.ExitCode()
	}
	c.logger.Error().Int("exit_code", cerr.ExitCode).Str("stderr", cerr.Stderr).Msgf("%s failed", op)
	return cerr
}

// writeDefaultsFile writes a [client] option file readable only by the
// current user. The returned cleanup removes it and is safe to call always.
func (c *Client) writeDefaultsFile() (string, func(), error) {
	f, err := os.CreateTemp(c.tempDir, "mysql-*.cnf")
	if err != nil {
		return "", func() {}, fmt.Errorf("create mysql credentials file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("path", f.Name()).Msg("failed to remove mysql credentials file")
		}
	}

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("chmod mysql credentials file: %w", err)
	}
	if _, err := f.WriteString(c.defaultsFileContent()); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write mysql credentials file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close mysql credentials file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (c *Client) defaultsFileContent() string {
	var b strings.Builder
	b.WriteString("[client]\n")
	b.WriteString("user=" + quoteOption(c.conn.User) + "\n")
	b.WriteString("password=" + quoteOption(c.conn.Password) + "\n")
	if c.conn.Socket != "" {
		b.WriteString("socket=" + quoteOption(c.conn.Socket) + "\n")
	} else {
		b.WriteString("host=" + quoteOption(c.conn.Host) + "\n")
		b.WriteString("port=" + strconv.Itoa(c.conn.Port) + "\n")
	}
	return b.String()
}

// quoteOption quotes a value for a MySQL option file.
func quoteOption(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
