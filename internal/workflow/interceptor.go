package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/periodical/internal/backup"
)

// ActivityErrorInterceptor names activity failures after the activity that
// produced them and stops retries of errors that cannot succeed on a second
// attempt, such as an invalid archive name or mode.
type ActivityErrorInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ActivityErrorInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &activityErrorInbound{next: next}
}

type activityErrorInbound struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *activityErrorInbound) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *activityErrorInbound) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err != nil {
		return result, classifyActivityError(activity.GetInfo(ctx).ActivityType.Name, err)
	}
	return result, nil
}

var permanentErrors = []error{
	backup.ErrInvalidName,
	backup.ErrInvalidMode,
	backup.ErrNotFound,
	backup.ErrNotArchive,
}

func classifyActivityError(activityName string, err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return err
	}
	for _, p := range permanentErrors {
		if errors.Is(err, p) {
			return temporal.NewNonRetryableApplicationError(err.Error(), activityName, err)
		}
	}
	return temporal.NewApplicationError(err.Error(), activityName, err)
}
