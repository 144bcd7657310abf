// Command jobgroupctl is the operator CLI for the offline-batch subsystem:
// create, list, inspect, and cancel jobgroups against the same store and
// queue the archivist worker uses. Grounded on 3leaps-gonimbus's cobra
// command tree (internal/cmd/*.go): one *cobra.Command per verb, RunE
// returning error, tabwriter output for list views, --json for scripting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"archivehub/internal/config"
	"archivehub/internal/jobgroup"
	"archivehub/internal/modelapi"
	"archivehub/internal/queue"
	"archivehub/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "jobgroupctl",
	Short:         "Inspect and drive the archivehub jobgroup subsystem",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(createJobgroupCmd, listJobgroupsCmd, showJobgroupCmd, cancelJobgroupCmd)
}

var createJobgroupCmd = &cobra.Command{
	Use:   "create-jobgroup <tenant> <batch> <mode>",
	Short: "Submit a new jobgroup for a tenant's batch",
	Long: `Submit a new jobgroup for a tenant's batch.

<mode> must be "jobgroup" -- the value the external batch endpoint's
metadata is stamped with (spec section 4.8 step 5). It is accepted as a
positional argument for forward compatibility with a future non-batch
mode.

Asset IDs are read from --assets (comma-separated UUIDv4s) or --file (a
JSON array of asset ID strings), since the jobgroup submission API takes
per-asset requests rather than a single batch identifier.

Examples:
  jobgroupctl create-jobgroup 3f2a... 9c1b... jobgroup --assets a1...,a2...
  jobgroupctl create-jobgroup 3f2a... 9c1b... jobgroup --file assets.json`,
	Args: cobra.ExactArgs(3),
	RunE: runCreateJobgroup,
}

var listJobgroupsCmd = &cobra.Command{
	Use:   "list-jobgroups",
	Short: "List jobgroups for a tenant",
	RunE:  runListJobgroups,
}

var showJobgroupCmd = &cobra.Command{
	Use:   "show-jobgroup <id>",
	Short: "Show one jobgroup's status and notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowJobgroup,
}

var cancelJobgroupCmd = &cobra.Command{
	Use:   "cancel-jobgroup <id>",
	Short: "Mark a jobgroup cancelled",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelJobgroup,
}

func init() {
	createJobgroupCmd.Flags().String("assets", "", "comma-separated asset UUIDs")
	createJobgroupCmd.Flags().String("file", "", "path to a JSON array of asset UUIDs")

	listJobgroupsCmd.Flags().String("tenant", "", "tenant UUID to list jobgroups for (required)")
	listJobgroupsCmd.Flags().Int("limit", 50, "maximum rows to return")
	listJobgroupsCmd.Flags().Bool("json", false, "output as JSON")

	showJobgroupCmd.Flags().Bool("json", false, "output as JSON")
}

func runCreateJobgroup(cmd *cobra.Command, args []string) error {
	tenantID, batchID, mode := args[0], args[1], args[2]
	if mode != "jobgroup" {
		return fmt.Errorf("unsupported mode %q: only \"jobgroup\" is implemented", mode)
	}

	assetIDs, err := collectAssetIDs(cmd)
	if err != nil {
		return err
	}
	if len(assetIDs) == 0 {
		return fmt.Errorf("no asset IDs provided: pass --assets or --file")
	}

	ctx := cmd.Context()
	deps, err := wireJobgroupDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	rawJobs := make([]map[string]any, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		rawJobs = append(rawJobs, map[string]any{
			"job_type":        "archivist",
			"processing_type": "jobgroup",
			"tenant_id":       tenantID,
			"batch_id":        batchID,
			"asset_id":        assetID,
		})
	}

	result, err := deps.jobgroup.Submit(ctx, rawJobs)
	if err != nil {
		return fmt.Errorf("submit jobgroup: %w", err)
	}
	return printJSON(result)
}

func runListJobgroups(cmd *cobra.Command, args []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	if tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	st, err := store.New(ctx, config.Load().PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	jobgroups, err := st.ListJobgroups(ctx, tenantID, limit)
	if err != nil {
		return fmt.Errorf("list jobgroups: %w", err)
	}
	if asJSON {
		return printJSON(jobgroups)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBATCH\tSTATUS\tCREATED")
	for _, g := range jobgroups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.ID, g.BatchID, g.Status, g.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runShowJobgroup(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()
	st, err := store.New(ctx, config.Load().PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()

	g, err := st.GetJobgroup(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get jobgroup: %w", err)
	}
	if asJSON {
		return printJSON(g)
	}

	fmt.Printf("id:        %s\n", g.ID)
	fmt.Printf("tenant:    %s\n", g.TenantID)
	fmt.Printf("batch:     %s\n", g.BatchID)
	fmt.Printf("status:    %s\n", g.Status)
	fmt.Printf("created:   %s\n", g.CreatedAt.Format(time.RFC3339))
	if len(g.Notes) > 0 {
		notes, _ := json.MarshalIndent(g.Notes, "", "  ")
		fmt.Printf("notes:     %s\n", notes)
	}
	return nil
}

func runCancelJobgroup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	deps, err := wireJobgroupDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.store.Close()

	if err := deps.jobgroup.Cancel(ctx, args[0]); err != nil {
		return fmt.Errorf("cancel jobgroup: %w", err)
	}
	fmt.Println("cancelled")
	return nil
}

func collectAssetIDs(cmd *cobra.Command) ([]string, error) {
	assetsFlag, _ := cmd.Flags().GetString("assets")
	fileFlag, _ := cmd.Flags().GetString("file")

	var ids []string
	if assetsFlag != "" {
		for _, id := range strings.Split(assetsFlag, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				ids = append(ids, trimmed)
			}
		}
	}
	if fileFlag != "" {
		data, err := os.ReadFile(fileFlag)
		if err != nil {
			return nil, fmt.Errorf("read asset file: %w", err)
		}
		var fromFile []string
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse asset file: %w", err)
		}
		ids = append(ids, fromFile...)
	}
	return ids, nil
}

type jobgroupDeps struct {
	store    *store.Store
	jobgroup *jobgroup.Service
}

func wireJobgroupDeps(ctx context.Context) (*jobgroupDeps, error) {
	cfg := config.Load()
	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	model := modelapi.New(cfg)
	q := queue.New(cfg)
	svc := jobgroup.New(cfg, st, model, q, zap.NewNop())
	return &jobgroupDeps{store: st, jobgroup: svc}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
