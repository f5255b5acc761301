package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/clustermap/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, auth and data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(apiClient)
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(c *client.Client) error {
	fmt.Fprintln(stdout, "\nclustermap doctor")
	fmt.Fprintln(stdout, "=================")

	results := doctorChecks(c)

	fmt.Fprintln(stdout)
	allPassed := true
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Fprintf(stdout, "[%s] %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Fprintf(stdout, "[%s] %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Fprintf(stdout, "       Hint: %s\n", r.Hint)
		}
	}

	fmt.Fprintln(stdout)
	if !allPassed {
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(stdout, "All checks passed.")
	return nil
}

func doctorChecks(c *client.Client) []checkResult {
	var results []checkResult

	cfgPath, _, err := loadConfigFile()
	if err != nil {
		// Flags or env may still configure the CLI.
		results = append(results, checkResult{Name: "Config file", Passed: true, Detail: "not found, using flags/env"})
	} else {
		results = append(results, checkResult{Name: "Config file", Passed: true, Detail: cfgPath})
	}

	results = append(results, checkResult{Name: "Server URL", Passed: flagURL != "", Detail: flagURL,
		Hint: "Set --url, CLUSTERMAP_URL, or run clustermap init"})

	keyDetail := "configured"
	if flagKey == "" {
		keyDetail = "not set"
	}
	results = append(results, checkResult{Name: "API key", Passed: true, Detail: keyDetail})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := c.Health(ctx)
	if err != nil {
		return append(results, checkResult{
			Name: "Server reachable", Detail: flagURL,
			Hint: fmt.Sprintf("Is the clustermap server running? Error: %v", err),
		})
	}
	results = append(results, checkResult{Name: "Server reachable", Passed: true, Detail: "v" + health.Version})

	clusters, err := c.Clusters.List(ctx)
	switch {
	case err != nil && client.IsUnauthorized(err):
		results = append(results, checkResult{Name: "Authentication", Hint: "Check your API key"})
	case err != nil:
		results = append(results, checkResult{Name: "Cluster hierarchy", Hint: err.Error()})
	default:
		results = append(results,
			checkResult{Name: "Authentication", Passed: true, Detail: "valid"},
			checkResult{Name: "Cluster hierarchy", Passed: len(clusters) > 0,
				Detail: fmt.Sprintf("%d clusters", len(clusters)), Hint: "Import data with clustermap import"},
		)
	}

	return results
}
