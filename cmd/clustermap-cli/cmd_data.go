package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/models"
)

func newClustersCmd() *cobra.Command {
	var leavesOnly bool
	var depth int
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List the cluster hierarchy",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			clusters, err := apiClient.Clusters.List(context.Background())
			if err != nil {
				fatal("list clusters", err)
			}
			clusters = filterClusters(clusters, leavesOnly, depth)

			if flagFmt == "table" {
				printClusterTable(clusters)
				return
			}
			output(clusters, strconv.Itoa(len(clusters)))
		},
	}
	cmd.Flags().BoolVar(&leavesOnly, "leaves", false, "Only leaf clusters")
	cmd.Flags().IntVar(&depth, "depth", -1, "Only clusters at this depth")
	return cmd
}

func filterClusters(clusters []models.Cluster, leavesOnly bool, depth int) []models.Cluster {
	out := clusters[:0:0]
	for _, c := range clusters {
		if leavesOnly && !c.IsLeaf {
			continue
		}
		if depth >= 0 && c.Depth != depth {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func printClusterTable(clusters []models.Cluster) {
	headers := []string{"ID", "LABEL", "DEPTH", "LEAF", "PATH"}
	var rows [][]string
	for _, c := range clusters {
		rows = append(rows, []string{c.ID, c.Label, strconv.Itoa(c.Depth), strconv.FormatBool(c.IsLeaf), c.Path})
	}
	formatTable(headers, rows)
}

func newPointsCmd() *cobra.Command {
	var offset, size int
	var clusterIDs []string
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Fetch a page of points, or the points of leaf clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if offset < 0 || size <= 0 {
				return fmt.Errorf("--offset must be >= 0 and --size > 0")
			}
			ctx := context.Background()

			var (
				pts []models.Point
				err error
			)
			if len(clusterIDs) > 0 {
				pts, err = apiClient.Points.ByCluster(ctx, clusterIDs)
			} else {
				pts, err = apiClient.Points.Batch(ctx, offset, size)
			}
			if err != nil {
				fatal("fetch points", err)
			}

			if flagFmt == "table" {
				printPointTable(pts)
				return nil
			}
			output(pts, strconv.Itoa(len(pts)))
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "Start row")
	cmd.Flags().IntVar(&size, "size", 100, "Rows to fetch")
	cmd.Flags().StringSliceVar(&clusterIDs, "cluster", nil, "Leaf cluster ids (repeatable)")
	return cmd
}

func printPointTable(pts []models.Point) {
	headers := []string{"ID", "TITLE", "X", "Y", "DATE", "CLUSTER"}
	var rows [][]string
	for _, p := range pts {
		rows = append(rows, []string{p.ID, truncate(p.Title, 48), fmtFloat(p.X), fmtFloat(p.Y), fmtDate(p.Date), p.ClusterPath})
	}
	formatTable(headers, rows)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newSearchCmd() *cobra.Command {
	var accessor string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents and print the matching point ids",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ids, err := apiClient.Search.IDs(context.Background(), args[0], accessor)
			if err != nil {
				fatal("search", err)
			}

			switch flagFmt {
			case "table":
				rows := make([][]string, len(ids))
				for i, id := range ids {
					rows[i] = []string{id}
				}
				formatTable([]string{"ID"}, rows)
			case "quiet":
				formatLines(ids)
			default:
				formatJSON(map[string]any{"query": args[0], "accessor": accessor, "ids": ids})
			}
		},
	}
	cmd.Flags().StringVar(&accessor, "accessor", domain.AccessorTitle, "Search accessor: title|semantic")
	return cmd
}
