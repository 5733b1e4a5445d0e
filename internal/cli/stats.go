package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду вывода сводки пропускной способности.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show throughput statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetStats()
			if err != nil {
				return err
			}

			statuses := make([]string, 0, len(stats.Counts))
			for status := range stats.Counts {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)

			rows := [][]string{
				{"queue_length", strconv.Itoa(stats.QueueLength)},
				{"tasks_per_second", fmt.Sprintf("%.3f", stats.TasksPerSecond)},
				{"success_rate", fmt.Sprintf("%.3f", stats.SuccessRate)},
				{"mean_generation_seconds", fmt.Sprintf("%.2f", stats.MeanGenerationSeconds)},
				{"window_seconds", formatUnits(stats.WindowSeconds)},
			}
			for _, status := range statuses {
				rows = append(rows, []string{"count." + status, strconv.Itoa(stats.Counts[status])})
			}
			for _, w := range stats.Workers {
				rows = append(rows, []string{"utilization." + w.WorkerID, fmt.Sprintf("%.3f", w.Utilization)})
			}

			out.Print([]string{"METRIC", "VALUE"}, rows, stats)
			return nil
		},
	}
}

// NewEventsCmd создаёт команду, печатающую поток событий до Ctrl+C.
func NewEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream orchestrator events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.StreamEvents(cmd.Context(), func(ev Event) error {
				if out.jsonMode {
					out.JSON(ev)
					return nil
				}
				out.Line("%s\t%s", ev.Name, ev.Data)
				return nil
			})
		},
	}
}
