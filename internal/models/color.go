package models

import (
	"hash/fnv"
	"math"
	"strconv"
)

// palette is the fixed set of colors assigned to clusters.
var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
	"#393b79", "#637939", "#8c6d31", "#843c39", "#7b4173",
	"#3182bd", "#e6550d", "#31a354", "#756bb1", "#636363",
}

// ColorFor derives a stable color from a cluster id. Points without a cluster
// fall back to hashing their position rounded to two decimals.
func ColorFor(clusterID string, x, y float64) string {
	h := fnv.New32a()

	if clusterID != "" {
		h.Write([]byte(clusterID)) //nolint:errcheck // hash.Hash never returns an error.
	} else {
		h.Write([]byte(strconv.FormatFloat(math.Round(x*100)/100, 'f', 2, 64))) //nolint:errcheck // see above.
		h.Write([]byte{','})                                                    //nolint:errcheck // see above.
		h.Write([]byte(strconv.FormatFloat(math.Round(y*100)/100, 'f', 2, 64))) //nolint:errcheck // see above.
	}

	return palette[h.Sum32()%uint32(len(palette))]
}
