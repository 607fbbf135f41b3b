// Package api serves the backup management REST API under /api/v1/backups.
// Every route requires an API key holding a backups scope.
package api
