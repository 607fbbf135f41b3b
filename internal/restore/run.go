package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/periodical/internal/archive"
	"github.com/edvin/periodical/internal/model"
)

// rename moves file trees during the swap and rollback.
var rename = os.Rename

// run is the state of one accepted restore.
type run struct {
	o           *Orchestrator
	req         Request
	id          string
	archivePath string
	state       State
	started     time.Time
	logger      zerolog.Logger

	snapshot           string
	enteredMaintenance bool
	workspace          string
	extractedTree      string
	dump               string
	// previousTree is where the live tree was moved to; empty when the site
	// had no public tree before the swap.
	previousTree string
	swapped      bool
}

type step struct {
	state State
	fn    func(ctx context.Context) error
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.o.record(ctx, r.logger, r.req, model.HistoryStatusStarted, "Restore process started.")

	steps := []step{
		{StatePreSnapshotting, r.preSnapshot},
		{StateEnteringMaintenance, r.enterMaintenance},
		{StateExtracting, r.extract},
		{StateSwappingFiles, r.swapFiles},
		{StateImportingDatabase, r.importDatabase},
	}
	for _, s := range steps {
		r.transition(s.state)
		if err := s.fn(ctx); err != nil {
			return nil, r.fail(ctx, err)
		}
	}

	r.transition(StateFinalizing)
	r.finalize()
	r.transition(StateDone)

	elapsed := r.o.now().Sub(r.started)
	restoresTotal.WithLabelValues("success").Inc()
	restoreDuration.Observe(elapsed.Seconds())
	r.o.record(ctx, r.logger, r.req, model.HistoryStatusSuccess, "Backup restored successfully.")
	r.logger.Info().Dur("duration", elapsed).Str("snapshot", r.snapshot).Msg("restore completed")

	return &Result{FileName: r.req.FileName, Snapshot: r.snapshot, Duration: elapsed}, nil
}

func (r *run) transition(s State) {
	r.logger.Debug().Str("from", string(r.state)).Str("to", string(s)).Msg("restore state")
	r.state = s
}

func (r *run) preSnapshot(ctx context.Context) error {
	name, err := r.o.snapshotter.PreRestoreSnapshot(ctx)
	r.o.recordSnapshot(ctx, r.logger, r.req, name, err)
	if err != nil {
		return fail(KindPreflight, fmt.Errorf("pre-restore backup failed, restore aborted: %w", err))
	}
	r.snapshot = name
	return nil
}

func (r *run) enterMaintenance(context.Context) error {
	if r.o.env.IsMaintenance() {
		return nil
	}
	if err := r.o.env.EnterMaintenance("restore"); err != nil {
		return fail(KindPreflight, fmt.Errorf("enter maintenance mode: %w", err))
	}
	r.enteredMaintenance = true
	return nil
}

func (r *run) extract(context.Context) error {
	r.workspace = filepath.Join(r.o.root, "restore-"+r.id)
	if err := os.Mkdir(r.workspace, 0o700); err != nil {
		r.workspace = ""
		return fail(KindArchive, fmt.Errorf("create restore workspace: %w", err))
	}

	extracted := filepath.Join(r.workspace, "extracted")
	if err := archive.Extract(r.archivePath, extracted); err != nil {
		return fail(KindArchive, err)
	}

	tree, err := archive.LocateFileTree(extracted)
	if err != nil {
		return fail(KindArchive, fmt.Errorf("backup archive has no %s: %w", archive.FileTreePrefix, err))
	}
	dump, err := archive.LocateDump(extracted)
	if err != nil {
		return fail(KindArchive, fmt.Errorf("backup archive has no SQL dump: %w", err))
	}
	r.extractedTree, r.dump = tree, dump
	return nil
}

func (r *run) swapFiles(context.Context) error {
	live := r.o.env.LiveTreePath()

	info, err := os.Stat(live)
	switch {
	case err == nil && info.IsDir():
		r.previousTree = filepath.Join(r.workspace, "live-pre-restore-"+r.id)
		if err := rename(live, r.previousTree); err != nil {
			r.previousTree = ""
			return fail(KindSwap, fmt.Errorf("move current file tree aside: %w", err))
		}
	case err == nil:
		return fail(KindSwap, fmt.Errorf("live file tree %s is not a directory", live))
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(live), 0o755); err != nil {
			return fail(KindSwap, fmt.Errorf("create parent of live file tree: %w", err))
		}
	default:
		return fail(KindSwap, fmt.Errorf("inspect live file tree: %w", err))
	}

	if err := rename(r.extractedTree, live); err != nil {
		if r.previousTree != "" {
			if rerr := rename(r.previousTree, live); rerr != nil {
				r.logger.Error().Err(rerr).Str("path", r.previousTree).Msg("failed to move previous file tree back")
			} else {
				r.previousTree = ""
			}
		}
		return fail(KindSwap, fmt.Errorf("move restored file tree into place: %w", err))
	}
	r.swapped = true
	return nil
}

func (r *run) importDatabase(ctx context.Context) error {
	if err := r.o.importer.Import(ctx, r.dump); err != nil {
		return fail(KindImport, err)
	}
	return nil
}

// finalize never fails the run: the new tree and database are in place.
func (r *run) finalize() {
	if err := r.o.env.ClearCache(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to clear caches after restore")
	}
	if err := os.RemoveAll(r.workspace); err != nil {
		r.logger.Warn().Err(err).Str("path", r.workspace).Msg("failed to remove restore workspace")
	}
	if r.enteredMaintenance {
		if err := r.o.env.ExitMaintenance(); err != nil {
			r.logger.Error().Err(err).Msg("failed to leave maintenance mode after restore")
		}
	}
}

// fail rolls back whatever the run changed and records the failure. Problems
// during rollback are logged and noted in the history message.
func (r *run) fail(ctx context.Context, cause error) error {
	var rerr *Error
	if !errors.As(cause, &rerr) {
		rerr = fail(KindPreflight, cause)
	}
	rerr.State = r.state

	r.logger.Error().Err(cause).Str("state", string(r.state)).Str("kind", string(rerr.Kind)).Msg("restore failed")
	r.transition(StateRollingBack)
	notes := r.rollback()
	r.transition(StateFailed)

	restoresTotal.WithLabelValues(string(rerr.Kind)).Inc()
	restoreDuration.Observe(r.o.now().Sub(r.started).Seconds())
	r.o.record(ctx, r.logger, r.req, model.HistoryStatusFailed, joinNotes(cause.Error(), notes))
	return rerr
}

func (r *run) rollback() []string {
	var notes []string
	treeRestored := true

	live := r.o.env.LiveTreePath()
	if r.swapped {
		if err := os.RemoveAll(live); err != nil {
			treeRestored = false
			notes = append(notes, fmt.Sprintf("remove restored file tree: %v", err))
		}
	}
	// previousTree is still set whenever the previous tree sits in the
	// workspace, including a swap that failed half way.
	if r.previousTree != "" && treeRestored {
		if err := rename(r.previousTree, live); err != nil {
			treeRestored = false
			notes = append(notes, fmt.Sprintf("move previous file tree back: %v", err))
		}
	}

	if r.enteredMaintenance {
		if err := r.o.env.ExitMaintenance(); err != nil {
			notes = append(notes, fmt.Sprintf("leave maintenance mode: %v", err))
		}
	}

	switch {
	case r.workspace == "":
	case !treeRestored:
		// The previous tree may still be inside the workspace.
		r.logger.Error().Str("path", r.workspace).Msg("keeping restore workspace for manual recovery")
	default:
		if err := os.RemoveAll(r.workspace); err != nil {
			notes = append(notes, fmt.Sprintf("remove workspace: %v", err))
		}
	}

	for _, n := range notes {
		r.logger.Error().Str("problem", n).Msg("restore rollback incomplete")
	}
	return notes
}
