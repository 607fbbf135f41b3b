// Package restore replaces the live site with the contents of a backup
// archive: public file tree and database together, with rollback of the file
// tree when the database import fails.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/edvin/periodical/internal/model"
	"github.com/edvin/periodical/internal/platform"
)

// State is a step of a restore run.
type State string

const (
	StateIdle                State = "idle"
	StatePreSnapshotting     State = "pre_snapshotting"
	StateEnteringMaintenance State = "entering_maintenance"
	StateExtracting          State = "extracting"
	StateSwappingFiles       State = "swapping_files"
	StateImportingDatabase   State = "importing_database"
	StateFinalizing          State = "finalizing"
	StateDone                State = "done"
	StateRollingBack         State = "rolling_back"
	StateFailed              State = "failed"
)

// ErrInProgress is returned when another restore holds the lock.
var ErrInProgress = errors.New("a restore is already in progress")

// Environment is the running site.
type Environment interface {
	IsMaintenance() bool
	EnterMaintenance(reason string) error
	ExitMaintenance() error
	LiveTreePath() string
	ClearCache() error
}

// Snapshotter takes the database-only safety archive before anything changes.
type Snapshotter interface {
	PreRestoreSnapshot(ctx context.Context) (string, error)
}

// Importer loads a SQL dump into the content database.
type Importer interface {
	Import(ctx context.Context, dumpPath string) error
}

// Ledger receives the history records of each run: started, terminal, and
// the create record of the pre-restore snapshot.
type Ledger interface {
	Record(ctx context.Context, rec *model.HistoryRecord) error
}

// Archives resolves an archive name to its location, validating the name.
type Archives interface {
	Path(name string) (string, error)
}

type Config struct {
	// WorkspaceRoot holds per-run workspaces and the lock file. It must be on
	// the same filesystem as the live tree so that renames are atomic.
	WorkspaceRoot string
}

type Orchestrator struct {
	logger      zerolog.Logger
	archives    Archives
	env         Environment
	snapshotter Snapshotter
	importer    Importer
	ledger      Ledger
	root        string

	slot *semaphore.Weighted
	lock *flock.Flock
	now  func() time.Time
}

func NewOrchestrator(logger zerolog.Logger, cfg Config, archives Archives, env Environment, snapshotter Snapshotter, importer Importer, ledger Ledger) *Orchestrator {
	return &Orchestrator{
		logger:      logger.With().Str("component", "restore").Logger(),
		archives:    archives,
		env:         env,
		snapshotter: snapshotter,
		importer:    importer,
		ledger:      ledger,
		root:        cfg.WorkspaceRoot,
		slot:        semaphore.NewWeighted(1),
		lock:        flock.New(filepath.Join(cfg.WorkspaceRoot, "restore.lock")),
		now:         time.Now,
	}
}

type Request struct {
	FileName string
	UserID   string
}

type Result struct {
	FileName string        `json:"file_name"`
	Snapshot string        `json:"snapshot"`
	Duration time.Duration `json:"duration"`
}

// Restore runs a full restore of req.FileName. Requests with an invalid or
// unknown archive name, or made while another restore runs, are rejected
// before anything is recorded. Every accepted run writes one started and one
// terminal history record. The run ignores cancellation of ctx once
// accepted; stopping half way would leave the site inconsistent.
func (o *Orchestrator) Restore(ctx context.Context, req Request) (*Result, error) {
	archivePath, err := o.archives.Path(req.FileName)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	id := platform.NewID()
	r := &run{
		o:           o,
		req:         req,
		id:          id,
		archivePath: archivePath,
		state:       StateIdle,
		started:     o.now(),
		logger:      o.logger.With().Str("restore_id", id).Str("file", req.FileName).Logger(),
	}
	return r.execute(ctx)
}

func (o *Orchestrator) acquire() (func(), error) {
	if !o.slot.TryAcquire(1) {
		return nil, ErrInProgress
	}
	if err := os.MkdirAll(o.root, 0o700); err != nil {
		o.slot.Release(1)
		return nil, fmt.Errorf("create restore workspace root: %w", err)
	}
	locked, err := o.lock.TryLock()
	if err != nil {
		o.slot.Release(1)
		return nil, fmt.Errorf("acquire restore lock: %w", err)
	}
	if !locked {
		o.slot.Release(1)
		return nil, ErrInProgress
	}
	return func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Error().Err(err).Msg("failed to release restore lock")
		}
		o.slot.Release(1)
	}, nil
}

func (o *Orchestrator) record(ctx context.Context, logger zerolog.Logger, req Request, status, message string) {
	o.write(ctx, logger, req, &model.HistoryRecord{
		Type:     model.HistoryTypeRestore,
		Status:   status,
		FileName: &req.FileName,
		Message:  message,
	})
}

// recordSnapshot writes the create record of the pre-restore snapshot. name
// is empty when the snapshot failed.
func (o *Orchestrator) recordSnapshot(ctx context.Context, logger zerolog.Logger, req Request, name string, cause error) {
	rec := &model.HistoryRecord{Type: model.HistoryTypeCreate}
	if cause != nil {
		rec.Status, rec.Message = model.HistoryStatusFailed, "Pre-restore backup failed: "+cause.Error()
	} else {
		rec.Status, rec.Message = model.HistoryStatusSuccess, "Pre-restore backup created successfully."
		rec.FileName = &name
	}
	o.write(ctx, logger, req, rec)
}

func (o *Orchestrator) write(ctx context.Context, logger zerolog.Logger, req Request, rec *model.HistoryRecord) {
	if req.UserID != "" {
		uid := req.UserID
		rec.UserID = &uid
	}
	if err := o.ledger.Record(ctx, rec); err != nil {
		logger.Error().Err(err).Str("type", rec.Type).Str("status", rec.Status).Msg("failed to write restore history record")
	}
}

func joinNotes(msg string, notes []string) string {
	if len(notes) == 0 {
		return msg
	}
	return msg + " (rollback: " + strings.Join(notes, "; ") + ")"
}
