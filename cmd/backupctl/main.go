package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvin/periodical/internal/config"
	"github.com/edvin/periodical/internal/core"
	"github.com/edvin/periodical/internal/db"
	"github.com/edvin/periodical/internal/logging"
	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/restore"
	"github.com/edvin/periodical/internal/site"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "backupctl"
	}
	if err := cfg.Validate("backupctl"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg)

	st, err := site.New(logger, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		remote := fs.Bool("offsite", false, "List the offsite copies instead of local archives")
		fs.Parse(os.Args[2:])

		var archives []model.BackupArchive
		switch {
		case !*remote:
			archives, err = st.Storage.List()
		case st.Offsite == nil:
			err = errors.New("offsite copies are not configured (OFFSITE_S3_BUCKET is empty)")
		default:
			archives, err = st.Offsite.ListArchives(ctx)
		}
		if err != nil {
			fail(err)
		}
		printArchives(os.Stdout, archives)

	case "snapshot":
		fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
		mode := fs.String("mode", model.BackupModeFull, "Archive mode: full or db")
		fs.Parse(os.Args[2:])

		pool := connect(ctx, cfg)
		defer pool.Close()
		events := core.NewBackupEventSubscriber(core.NewHistoryService(pool))

		a, err := st.Creator.Create(ctx, *mode, "")
		if perr := events.Handle(ctx, snapshotEvent(a, *mode, err)); perr != nil {
			logger.Error().Err(perr).Msg("failed to record snapshot in backup history")
		}
		if err != nil {
			fail(err)
		}
		fmt.Printf("Created %s (%s)\n", a.FileName, a.FileSize)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		limit := fs.Int("limit", core.DefaultHistoryLimit, "Number of records to show")
		fs.Parse(os.Args[2:])

		pool := connect(ctx, cfg)
		defer pool.Close()
		records, err := core.NewHistoryService(pool).ListRecent(ctx, *limit)
		if err != nil {
			fail(err)
		}
		printHistory(os.Stdout, records)

	case "restore":
		fs := flag.NewFlagSet("restore", flag.ExitOnError)
		user := fs.String("user", "backupctl", "Actor recorded in the backup history")
		fs.Parse(os.Args[2:])

		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: backupctl restore [-user NAME] <file-name>")
			os.Exit(1)
		}

		pool := connect(ctx, cfg)
		defer pool.Close()
		orchestrator := st.Restorer(logger, cfg, core.NewHistoryService(pool))

		fmt.Printf("Restoring %s. The site is in maintenance until the restore finishes.\n", fs.Arg(0))
		res, err := orchestrator.Restore(ctx, restore.Request{FileName: fs.Arg(0), UserID: *user})
		if err != nil {
			fail(err)
		}
		fmt.Printf("Backup restored successfully in %s (pre-restore snapshot: %s)\n", res.Duration.Round(time.Second), res.Snapshot)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// snapshotEvent describes the outcome of a snapshot taken from the command line.
func snapshotEvent(a model.BackupArchive, mode string, err error) model.BackupEvent {
	if err != nil {
		return model.BackupEvent{Kind: model.EventBackupFailed, Mode: mode, Error: err.Error(), UserID: "backupctl"}
	}
	return model.BackupEvent{
		Kind:      model.EventBackupSucceeded,
		Mode:      mode,
		FileName:  a.FileName,
		SizeBytes: a.SizeBytes,
		UserID:    "backupctl",
	}
}

func connect(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		fail(err)
	}
	return pool
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printArchives(w io.Writer, archives []model.BackupArchive) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tCREATED")
	for _, a := range archives {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.FileName, a.FileSize, a.CreatedAt)
	}
	tw.Flush()
}

func printHistory(w io.Writer, records []model.HistoryRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tSTATUS\tFILE\tMESSAGE")
	for _, r := range records {
		file := "-"
		if r.FileName != nil {
			file = *r.FileName
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format(model.ArchiveTimeLayout), r.Type, r.Status, file, r.Message)
	}
	tw.Flush()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  backupctl list [-offsite]                   List archives in backup storage
  backupctl history [-limit N]                Show recent backup history
  backupctl snapshot [-mode full|db]          Create an archive now
  backupctl restore [-user NAME] <file-name>  Restore the site from an archive`)
}
