package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/service"
	"github.com/persistorai/clustermap/internal/view"
)

// exploreOptions are the facets applied, in order, to a local session.
type exploreOptions struct {
	Clusters []string
	From     string
	To       string
	Query    string
	Accessor string
	Zoom     float64
	LoadMore int
	Labels   string
	Sample   int
	Verbose  bool
}

// exploreReport is what explore prints.
type exploreReport struct {
	View    view.Snapshot `json:"view"`
	Labels  []string      `json:"labels"`
	Sample  []string      `json:"sample"`
	Matches *int          `json:"search_matches,omitempty"`
}

func newExploreCmd() *cobra.Command {
	var opts exploreOptions
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run a local selection session against the server's data",
		Long: "Loads the cluster hierarchy and the first window of points from the server, " +
			"applies the given facets in order (clusters, date range, search, zoom) and " +
			"prints the resulting selection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			report, err := runExplore(ctx, apiClient, opts)
			if err != nil {
				return err
			}

			switch flagFmt {
			case "table":
				printExploreTable(report)
			case "quiet":
				formatLines(report.Sample)
			default:
				formatJSON(report)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.Clusters, "cluster", nil, "Cluster ids to select (repeatable; more than one enables multi-cluster mode)")
	cmd.Flags().StringVar(&opts.From, "from", "", "Date range start (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Date range end (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.Query, "search", "", "Search query")
	cmd.Flags().StringVar(&opts.Accessor, "accessor", domain.AccessorTitle, "Search accessor")
	cmd.Flags().Float64Var(&opts.Zoom, "zoom", 0, "Zoom level for label computation")
	cmd.Flags().IntVar(&opts.LoadMore, "load-more", 0, "Extra pages to load before applying facets")
	cmd.Flags().StringVar(&opts.Labels, "labels", "", "Label policy: depth|topn")
	cmd.Flags().IntVar(&opts.Sample, "sample", 20, "Selected ids to print")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log session activity to stderr")
	return cmd
}

func runExplore(ctx context.Context, backend domain.Backend, opts exploreOptions) (*exploreReport, error) {
	dr, err := parseRange(opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	r := &headlessRenderer{zoom: opts.Zoom}
	s, err := service.NewSession("cli", backend, r, nil, log, service.SessionOptions{
		LabelPolicy:  opts.Labels,
		MultiCluster: len(opts.Clusters) > 1,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	for i := 0; i < opts.LoadMore; i++ {
		res, err := s.Loader().LoadMore(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading more: %w", err)
		}
		if res.Done {
			break
		}
	}

	v := s.View()
	for _, id := range opts.Clusters {
		if err := v.OnClusterSelect(ctx, id); err != nil {
			return nil, err
		}
	}

	if dr != nil {
		v.OnTimelineRangeSelected(*dr)
	}

	report := &exploreReport{}
	if opts.Query != "" {
		n, err := v.OnSearch(ctx, opts.Query, opts.Accessor)
		if err != nil {
			return nil, err
		}
		report.Matches = &n
	}

	if opts.Zoom > 0 {
		if err := v.OnZoomChanged(ctx, opts.Zoom, nil); err != nil {
			return nil, err
		}
	}

	report.View = v.Snapshot()
	report.Labels = v.VisibleLabels()
	report.Sample = s.Engine().Selection().Page(0, max(opts.Sample, 0))

	return report, nil
}

// parseRange returns nil when neither bound is set. A missing bound is
// open-ended.
func parseRange(from, to string) (*models.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}

	dr := models.DateRange{
		From: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
	}

	var err error
	if from != "" {
		if dr.From, err = parseDate(from); err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if dr.To, err = parseDate(to); err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
	}

	if !dr.Valid() {
		return nil, fmt.Errorf("--from %s is after --to %s", from, to)
	}

	return &dr, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func printExploreTable(r *exploreReport) {
	headers := []string{"STATE", "SELECTED", "POINTS", "DOCUMENTS", "CLUSTERS", "CURSOR", "LABELS"}
	rows := [][]string{{
		r.View.State.String(),
		strconv.Itoa(r.View.SelectionSize),
		strconv.Itoa(r.View.Points),
		strconv.Itoa(r.View.Documents),
		strconv.Itoa(r.View.Clusters),
		strconv.Itoa(r.View.Cursor),
		strconv.Itoa(len(r.Labels)),
	}}
	formatTable(headers, rows)

	if len(r.Sample) > 0 {
		fmt.Fprintln(stdout)
		formatLines(r.Sample)
	}
}

// headlessRenderer keeps only the last frame; explore reads state from the
// session itself.
type headlessRenderer struct {
	mu   sync.Mutex
	zoom float64
	last view.Frame
}

func (r *headlessRenderer) SetData([]models.Point) {}

func (r *headlessRenderer) SetSelection([]string) {}

func (r *headlessRenderer) SetVisibleLabels([]string) {}

func (r *headlessRenderer) FitView() {}

func (r *headlessRenderer) ZoomLevel() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

func (r *headlessRenderer) RenderFrame(f view.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = f
}
