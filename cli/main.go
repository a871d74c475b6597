package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := NewApiClient()
	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "health":
		err = runHealth(client)
	case "batch":
		err = runBatch(client, args)
	case "compliance":
		err = runCompliance(client, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Usage: proofbench-cli <command> [options]

Commands:
  health                          Check API server health
  batch start                     Start a batch execution
  batch status <batch-id>         Show batch status
  batch watch <batch-id>          Stream batch progress until it finishes
  batch cancel <batch-id>         Cancel a running batch
  compliance generate             Generate a compliance report

Environment:
  PROOFBENCH_API_URL              API base URL (default http://localhost:8080)`)
}

func runHealth(client *ApiClient) error {
	ok, err := client.CheckHealth()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("API server at %s is healthy\n", client.BaseURL)
	}
	return nil
}

// parseIDList turns "1,2,3" into []uint{1, 2, 3}.
func parseIDList(raw string) ([]uint, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func runBatch(client *ApiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("batch requires a subcommand: start, status, watch, cancel")
	}

	switch args[0] {
	case "start":
		flags := flag.NewFlagSet("batch start", flag.ExitOnError)
		workspace := flags.Uint("workspace", 0, "workspace ID (required)")
		agents := flags.String("agents", "", "comma-separated agent IDs (required)")
		cases := flags.String("cases", "", "comma-separated test case IDs (required)")
		testType := flags.String("type", "quality", "test type: quality or security")
		benchmark := flags.String("benchmark", "", "benchmark ID (defaults to batch ID)")
		delayMS := flags.Int("delay-ms", 0, "per-call delay for security batches")
		watch := flags.Bool("watch", false, "stream progress after starting")
		flags.Parse(args[1:])

		agentIDs, err := parseIDList(*agents)
		if err != nil {
			return err
		}
		testCaseIDs, err := parseIDList(*cases)
		if err != nil {
			return err
		}
		if *workspace == 0 || len(agentIDs) == 0 || len(testCaseIDs) == 0 {
			return fmt.Errorf("batch start requires -workspace, -agents and -cases")
		}

		batch, err := client.StartBatch(uint(*workspace), agentIDs, testCaseIDs, *testType, *benchmark, *delayMS)
		if err != nil {
			return err
		}
		fmt.Printf("Started batch %s (%d test executions)\n", batch.ID, batch.Total)
		if *watch {
			return watchBatch(client, uint(*workspace), batch.ID)
		}
		return nil

	case "status", "watch", "cancel":
		flags := flag.NewFlagSet("batch "+args[0], flag.ExitOnError)
		workspace := flags.Uint("workspace", 0, "workspace ID (required)")
		flags.Parse(args[1:])
		rest := flags.Args()
		if *workspace == 0 || len(rest) < 1 {
			return fmt.Errorf("batch %s requires -workspace and a batch ID", args[0])
		}
		batchID := rest[0]

		switch args[0] {
		case "status":
			batch, err := client.GetBatch(uint(*workspace), batchID)
			if err != nil {
				return err
			}
			printBatch(*batch)
			return nil
		case "watch":
			return watchBatch(client, uint(*workspace), batchID)
		default:
			status, err := client.CancelBatch(uint(*workspace), batchID)
			if err != nil {
				return err
			}
			fmt.Printf("Batch %s: %s\n", batchID, status)
			return nil
		}

	default:
		return fmt.Errorf("unknown batch subcommand %q", args[0])
	}
}

func watchBatch(client *ApiClient, workspaceID uint, id string) error {
	return client.WatchBatch(workspaceID, id, func(snapshot BatchStatus) {
		printBatch(snapshot)
	})
}

func printBatch(batch BatchStatus) {
	eta := "n/a"
	if batch.EstimatedCompletion != nil {
		eta = batch.EstimatedCompletion.Format(time.RFC3339)
	}
	fmt.Printf("[%s] %d/%d completed  %d passed  %d failed  eta=%s\n",
		batch.Status, batch.Completed, batch.Total, batch.Successful, batch.Failed, eta)
	for _, line := range batch.ErrorLog {
		fmt.Printf("  ! %s\n", line.Message)
	}
}

func runCompliance(client *ApiClient, args []string) error {
	if len(args) < 1 || args[0] != "generate" {
		return fmt.Errorf("compliance requires the generate subcommand")
	}
	flags := flag.NewFlagSet("compliance generate", flag.ExitOnError)
	workspace := flags.Uint("workspace", 0, "workspace ID (required)")
	agent := flags.Uint("agent", 0, "agent ID (required)")
	flags.Parse(args[1:])
	if *workspace == 0 || *agent == 0 {
		return fmt.Errorf("compliance generate requires -workspace and -agent")
	}

	report, err := client.GenerateComplianceReport(uint(*workspace), uint(*agent))
	if err != nil {
		return err
	}
	fmt.Printf("Compliance report #%d for agent %d\n", report.ID, report.AgentID)
	fmt.Printf("  Score: %.1f%% (%d/%d passed)\n", report.ComplianceScore, report.TestsPassed, report.TotalTests)
	fmt.Println(report.ExecutiveSummary)
	if len(report.Recommendations) > 0 {
		fmt.Println("Recommendations:")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
	return nil
}
