package workflow

import (
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/periodical/internal/activity"
	"github.com/edvin/periodical/internal/model"
)

// registerActivities registers the activity struct with the test workflow
// environment so that parameter and return types can be deserialized. All
// activities are mocked via OnActivity in the tests.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Backup{})
}

// matchEvent matches a PublishBackupEvent argument by kind and, when non-empty,
// by file name.
func matchEvent(kind, fileName string) interface{} {
	return mock.MatchedBy(func(ev model.BackupEvent) bool {
		return ev.Kind == kind && (fileName == "" || ev.FileName == fileName)
	})
}
