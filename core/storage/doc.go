// Package storage provides the S3-compatible client used to archive deletion
// history before an admin bulk-clear. It is optional infrastructure; the
// janitor runs fine without it.
package storage
