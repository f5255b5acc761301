package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/clustermap/client"
	"github.com/persistorai/clustermap/internal/domain"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage exploration sessions on the server",
	}
	cmd.AddCommand(sessionCreateCmd())
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionGetCmd())
	cmd.AddCommand(sessionDeleteCmd())
	cmd.AddCommand(sessionSelectCmd())
	cmd.AddCommand(sessionSearchCmd())
	cmd.AddCommand(sessionClearCmd())
	cmd.AddCommand(sessionLoadMoreCmd())
	cmd.AddCommand(sessionSelectionCmd())
	return cmd
}

func sessionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Start a session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s, err := apiClient.Sessions.Create(context.Background())
			if err != nil {
				fatal("create session", err)
			}
			output(s, s.ID)
		},
	}
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sessions, err := apiClient.Sessions.List(context.Background())
			if err != nil {
				fatal("list sessions", err)
			}
			if flagFmt == "table" {
				printSessionTable(sessions)
				return
			}
			output(sessions, strconv.Itoa(len(sessions)))
		},
	}
}

func printSessionTable(sessions []client.Session) {
	headers := []string{"ID", "STATE", "SELECTED", "POINTS", "LAST SEEN"}
	var rows [][]string
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID, s.View.State, strconv.Itoa(s.View.SelectionSize),
			strconv.Itoa(s.View.Points), s.LastSeen.Format("2006-01-02 15:04:05"),
		})
	}
	formatTable(headers, rows)
}

func sessionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := apiClient.Sessions.Get(context.Background(), args[0])
			if err != nil {
				fatal("get session", err)
			}
			output(s, s.ID)
		},
	}
}

func sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Sessions.Delete(context.Background(), args[0]); err != nil {
				fatal("delete session", err)
			}
			output(map[string]string{"deleted": args[0]}, args[0])
		},
	}
}

func sessionSelectCmd() *cobra.Command {
	var from, to string
	var clusterID, pointID string
	cmd := &cobra.Command{
		Use:   "select <id>",
		Short: "Apply a point, cluster or date-range facet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id := args[0]

			set := 0
			for _, v := range []string{clusterID, pointID, from + to} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return fmt.Errorf("exactly one of --cluster, --point or --from/--to is required")
			}

			var (
				v   *client.ViewState
				err error
			)
			switch {
			case clusterID != "":
				v, err = apiClient.Sessions.SelectCluster(ctx, id, clusterID)
			case pointID != "":
				v, err = apiClient.Sessions.Click(ctx, id, pointID)
			default:
				dr, perr := parseRange(from, to)
				if perr != nil {
					return perr
				}
				v, err = apiClient.Sessions.Timeline(ctx, id, dr.From, dr.To)
			}
			if err != nil {
				fatal("select", err)
			}
			output(v, strconv.Itoa(v.SelectionSize))
			return nil
		},
	}
	cmd.Flags().StringVar(&clusterID, "cluster", "", "Cluster id")
	cmd.Flags().StringVar(&pointID, "point", "", "Point id (doc:<id>)")
	cmd.Flags().StringVar(&from, "from", "", "Date range start")
	cmd.Flags().StringVar(&to, "to", "", "Date range end")
	return cmd
}

func sessionSearchCmd() *cobra.Command {
	var accessor string
	cmd := &cobra.Command{
		Use:   "search <id> <query>",
		Short: "Narrow a session by a search",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Sessions.Search(context.Background(), args[0], args[1], accessor)
			if err != nil {
				fatal("search", err)
			}
			output(res, strconv.Itoa(res.Matches))
		},
	}
	cmd.Flags().StringVar(&accessor, "accessor", domain.AccessorTitle, "Search accessor")
	return cmd
}

func sessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <id>",
		Short: "Reset every facet",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			v, err := apiClient.Sessions.Clear(context.Background(), args[0])
			if err != nil {
				fatal("clear", err)
			}
			output(v, v.State)
		},
	}
}

func sessionLoadMoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load-more <id>",
		Short: "Load the next page of points into a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Sessions.LoadMore(context.Background(), args[0])
			if err != nil {
				fatal("load more", err)
			}
			output(res, strconv.Itoa(res.Added))
		},
	}
}

func sessionSelectionCmd() *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "selection <id>",
		Short: "Page through a session's selected points",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			page, err := apiClient.Sessions.Selection(context.Background(), args[0], offset, limit)
			if err != nil {
				fatal("selection", err)
			}
			if flagFmt == "table" {
				printPointTable(page.Points)
				return
			}
			output(page, strconv.Itoa(page.Total))
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "First selected point")
	cmd.Flags().IntVar(&limit, "limit", 100, "Points per page")
	return cmd
}
