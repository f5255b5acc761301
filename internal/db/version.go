package db

import (
	"io/fs"
	"path"

	"github.com/pressly/goose/v3"

	"github.com/persistorai/clustermap/internal/db/migrations"
)

// SchemaVersion returns the highest embedded migration version, which a
// fully migrated database reports.
func SchemaVersion() int64 {
	return latestVersion(migrations.FS)
}

// latestVersion scans fsys for goose-numbered SQL files.
func latestVersion(fsys fs.FS) int64 {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0
	}

	var latest int64
	for _, name := range names {
		v, err := goose.NumericComponent(path.Base(name))
		if err == nil && v > latest {
			latest = v
		}
	}

	return latest
}
