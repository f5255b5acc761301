package store

import "testing"

func TestValuesPlaceholders(t *testing.T) {
	tests := []struct {
		rows, cols int
		want       string
	}{
		{1, 1, "($1)"},
		{2, 2, "($1,$2),($3,$4)"},
		{1, 3, "($1,$2,$3)"},
	}

	for _, tc := range tests {
		if got := valuesPlaceholders(tc.rows, tc.cols); got != tc.want {
			t.Errorf("valuesPlaceholders(%d, %d) = %q, want %q", tc.rows, tc.cols, got, tc.want)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

func TestScanPoint_PathFallsBackToCluster(t *testing.T) {
	p, err := scanPoint(func(dest ...any) error {
		*dest[0].(*string) = "d1"
		*dest[1].(*string) = "Title"
		*dest[5].(*string) = "c9"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if p.ClusterPath != "c9" || p.LeafClusterID() != "c9" || p.ID != "doc:d1" {
		t.Errorf("point = %+v", p)
	}
}
