package db

import (
	"testing"
	"testing/fstest"
)

func TestLatestVersion(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want int64
	}{
		{"empty", fstest.MapFS{}, 0},
		{"ordered", fstest.MapFS{"001_points.sql": {}, "002_search.sql": {}}, 2},
		{"gap", fstest.MapFS{"001_points.sql": {}, "007_index.sql": {}}, 7},
		{"ignores others", fstest.MapFS{"003_x.sql": {}, "README.md": {}, "notes.sql": {}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := latestVersion(tt.fsys); got != tt.want {
				t.Errorf("latestVersion = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSchemaVersion(t *testing.T) {
	if v := SchemaVersion(); v < 1 {
		t.Errorf("SchemaVersion = %d", v)
	}
}
