package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"metamapa/config"
)

// PgDumper erzeugt einen SQL-Dump über das pg_dump-Binary.
type PgDumper struct {
	cfg *config.Config
}

func NewPgDumper(cfg *config.Config) *PgDumper {
	return &PgDumper{cfg: cfg}
}

func (d *PgDumper) Dump(ctx context.Context, w io.Writer) error {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", d.cfg.DBHost,
		"-p", strconv.Itoa(d.cfg.DBPort),
		"-U", d.cfg.DBUser,
		"-d", d.cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", d.cfg.DBPassword))
	cmd.Stdout = w
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	return nil
}
