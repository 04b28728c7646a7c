package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ikoma-ai/ikoma/internal/agent"
	"github.com/ikoma-ai/ikoma/internal/checkpoint"
)

var (
	flagShowSteps bool
	flagForce     bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and manage run checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpointStore()
		if err != nil {
			return err
		}
		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No checkpointed runs")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %d step(s)  %s\n", r.RunID, r.Steps, r.LatestTS.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show a run's checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpointStore()
		if err != nil {
			return err
		}
		records, err := store.GetSteps(args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no checkpoints for run %s", args[0])
		}

		for _, rec := range records {
			fmt.Printf("step %d  %s\n", rec.Step, rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))

			var it agent.IterationRecord
			if err := json.Unmarshal(rec.State, &it); err != nil {
				fmt.Println("  (unreadable state)")
				continue
			}
			if it.Reflection != nil {
				fmt.Printf("  reflection: %s (next: %s)\n", it.Reflection.Summary, it.Reflection.NextAction)
			}
			if flagShowSteps {
				for _, s := range it.Steps {
					took := s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)
					args, _ := json.Marshal(s.Args)
					if s.Succeeded() {
						fmt.Printf("    %d. %s %s: ok in %s (%s)\n", s.Step, s.ToolName, args, took, s.Description)
					} else {
						fmt.Printf("    %d. %s %s: %s (%s)\n", s.Step, s.ToolName, args, s.Error, s.Description)
					}
				}
			}
		}
		return nil
	},
}

var checkpointRmCmd = &cobra.Command{
	Use:   "rm <run_id>",
	Short: "Delete a run's checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagForce && !confirmDestructive(fmt.Sprintf("Delete all checkpoints for run %s", args[0])) {
			fmt.Println("Aborted")
			return nil
		}
		store, err := openCheckpointStore()
		if err != nil {
			return err
		}
		if err := store.DeleteRun(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted checkpoints for run %s\n", args[0])
		return nil
	},
}

var checkpointClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Delete every checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagForce && !confirmDestructive("Delete ALL checkpoints") {
			fmt.Println("Aborted")
			return nil
		}
		store, err := openCheckpointStore()
		if err != nil {
			return err
		}
		if err := store.ClearAll(); err != nil {
			return err
		}
		fmt.Println("All checkpoints deleted")
		return nil
	},
}

func init() {
	checkpointShowCmd.Flags().BoolVar(&flagShowSteps, "steps", false, "include per-step outcomes")
	checkpointRmCmd.Flags().BoolVar(&flagForce, "force", false, "skip the confirmation prompt")
	checkpointClearAllCmd.Flags().BoolVar(&flagForce, "force", false, "skip the confirmation prompt")

	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointRmCmd, checkpointClearAllCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func openCheckpointStore() (*checkpoint.Store, error) {
	if !settings.CheckpointerEnabled {
		fmt.Fprintln(os.Stderr, "note: checkpointer is disabled; inspecting the existing database")
	}
	return checkpoint.Open(settings.ConversationDBPath)
}

func confirmDestructive(label string) bool {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := prompt.Run()
	return err == nil
}
