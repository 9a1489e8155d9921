package subcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/resourcekit/config"
	"github.com/vinayprograms/resourcekit/resource"
	"github.com/vinayprograms/resourcekit/state"
)

func init() {
	RootCmd.AddCommand(NewInspectCommand())
}

// NewInspectCommand returns the command that lists persisted resources
// straight from the state backend.
func NewInspectCommand() *cobra.Command {
	inspectCmd := &InspectCommand{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List resources persisted in the state backend",
		RunE:  inspectCmd.inspect,
	}

	cmd.Flags().StringVar(&inspectCmd.Status, "status", "", "only show resources with this status")
	cmd.Flags().StringVar(&inspectCmd.Type, "type", "", "only show resources of this type")
	cmd.Flags().BoolVar(&inspectCmd.JSON, "json", false, "print full records as JSON")

	return cmd
}

// InspectCommand holds inspect flags.
type InspectCommand struct {
	Status string
	Type   string
	JSON   bool
}

func (i *InspectCommand) inspect(cmd *cobra.Command, args []string) error {
	if i.Status != "" && !resource.Status(i.Status).Valid() {
		return fmt.Errorf("unknown status %q", i.Status)
	}
	if i.Type != "" && !resource.Type(i.Type).Valid() {
		return fmt.Errorf("unknown type %q", i.Type)
	}

	cfg, log, err := loadConfig(globalOpts.ConfigPath, globalOpts.LogLevel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}
	defer closeStore()

	records, skipped, err := loadRecords(ctx, store, cfg.Registry.KeyPrefix)
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warn("skipped unreadable records", map[string]interface{}{"count": skipped})
	}

	records = filterRecords(records, resource.Status(i.Status), resource.Type(i.Type))

	out := cmd.OutOrStdout()
	if i.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return printRecords(out, records, cfg)
}

// loadRecords reads every resource record under prefix, skipping sub-keys
// and records that do not decode.
func loadRecords(ctx context.Context, store state.Store, prefix string) ([]*resource.Resource, int, error) {
	keys, err := store.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, 0, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)

	var (
		records []*resource.Resource
		skipped int
	)
	for _, key := range keys {
		id := strings.TrimPrefix(key, prefix)
		if id == "" || strings.ContainsAny(id, ":.") {
			continue
		}
		data, err := store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				continue
			}
			return nil, 0, fmt.Errorf("get %s: %w", key, err)
		}
		r, err := resource.Unmarshal(data)
		if err != nil || r.ID != id {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

func filterRecords(records []*resource.Resource, status resource.Status, typ resource.Type) []*resource.Resource {
	out := records[:0]
	for _, r := range records {
		if status != "" && r.Status != status {
			continue
		}
		if typ != "" && r.Type != typ {
			continue
		}
		out = append(out, r)
	}
	return out
}

func printRecords(w io.Writer, records []*resource.Resource, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tADDRESS\tLAST CHECK\tADDED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Type, r.Status, r.Address, lastCheck(r), r.AddedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d resource(s) in %s backend\n", len(records), cfg.State.Backend)
	return err
}

func lastCheck(r *resource.Resource) string {
	if len(r.HealthHistory) == 0 {
		return "-"
	}
	last := r.HealthHistory[len(r.HealthHistory)-1]
	if last.Healthy {
		return fmt.Sprintf("ok %.1fms", last.LatencyMS)
	}
	if last.Reason != "" {
		return "fail: " + last.Reason
	}
	return "fail"
}
