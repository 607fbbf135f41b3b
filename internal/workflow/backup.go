package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/periodical/internal/activity"
	"github.com/edvin/periodical/internal/model"
)

// CreateArchiveWorkflow writes a new archive, mirrors it offsite and reports
// the outcome to the history ledger. Manual and nightly backups both run it.
func CreateArchiveWorkflow(ctx workflow.Context, params model.CreateArchiveParams) error {
	createCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		// A retry would dump the database a second time.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var archive model.BackupArchive
	err := workflow.ExecuteActivity(createCtx, "CreateArchive", params).Get(ctx, &archive)
	if err != nil {
		publishEvent(ctx, model.BackupEvent{
			Kind:   model.EventBackupFailed,
			Mode:   params.Mode,
			Error:  failureMessage(err),
			UserID: params.UserID,
		})
		return err
	}

	publishEvent(ctx, model.BackupEvent{
		Kind:      model.EventBackupSucceeded,
		Mode:      params.Mode,
		FileName:  archive.FileName,
		SizeBytes: archive.SizeBytes,
		UserID:    params.UserID,
	})

	offsiteCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
	if err := workflow.ExecuteActivity(offsiteCtx, "CopyArchiveOffsite", archive.FileName).Get(ctx, nil); err != nil {
		publishEvent(ctx, model.BackupEvent{
			Kind:     model.EventOffsiteFailed,
			FileName: archive.FileName,
			Error:    failureMessage(err),
		})
	}
	return nil
}

// MonitorArchivesWorkflow checks the newest archive and records whether it
// is healthy.
func MonitorArchivesWorkflow(ctx workflow.Context, backupName string) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var report activity.HealthReport
	if err := workflow.ExecuteActivity(ctx, "CheckArchiveHealth").Get(ctx, &report); err != nil {
		report = activity.HealthReport{Reason: failureMessage(err)}
	}

	ev := model.BackupEvent{Kind: model.EventHealthyBackup, BackupName: backupName}
	if !report.Healthy {
		ev.Kind = model.EventUnhealthyBackup
		ev.Error = report.Reason
	}
	publishEvent(ctx, ev)
	return nil
}

// CleanupArchivesWorkflow applies the retention policy.
func CleanupArchivesWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var result activity.CleanupResult
	if err := workflow.ExecuteActivity(ctx, "CleanupArchives").Get(ctx, &result); err != nil {
		publishEvent(ctx, model.BackupEvent{Kind: model.EventCleanupFailed, Error: failureMessage(err)})
		return err
	}
	publishEvent(ctx, model.BackupEvent{Kind: model.EventCleanupSucceeded})
	return nil
}

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    1 * time.Second,
			MaximumInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
		},
	}
}

// publishEvent records ev. A failure to record is logged and does not fail
// the workflow.
func publishEvent(ctx workflow.Context, ev model.BackupEvent) {
	if err := workflow.ExecuteActivity(ctx, "PublishBackupEvent", ev).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to publish backup event", "kind", ev.Kind, "error", err)
	}
}

// failureMessage strips the activity wrapping from err so that history
// records carry the message of the underlying failure.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Message() != "" {
		return appErr.Message()
	}
	return err.Error()
}
