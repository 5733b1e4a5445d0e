package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами генерации.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage generation tasks",
	}

	cmd.AddCommand(
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var taskHeaders = []string{"ID", "KIND", "STATUS", "PRIORITY", "UNITS", "WORKER", "ERROR"}

func taskRow(t TaskResponse) []string {
	return []string{
		t.ID,
		t.Kind,
		t.Status,
		strconv.Itoa(t.Priority),
		formatUnits(t.RequiredCapacityUnits),
		t.WorkerID,
		t.Error,
	}
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		kind     string
		units    float64
		priority int
		params   []string
		strategy string
		order    []string
		wait     bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a generation task",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SubmitTaskRequest{
				Kind:                  kind,
				RequiredCapacityUnits: units,
				Strategy:              StrategyRequest{Kind: strategy, Order: order},
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Parameters = parsed

			task, err := client.SubmitTask(req)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Task queued: %s", task.ID))

			if wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()

				task, err = client.WaitTask(ctx, task.ID, 500*time.Millisecond)
				if err != nil {
					return err
				}
			}

			out.Print(taskHeaders, [][]string{taskRow(*task)}, task)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "image", "Generation kind (image, video)")
	cmd.Flags().Float64Var(&units, "units", 0, "Required capacity units (estimated if not specified)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority tier, higher runs first")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Generation parameter as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Selection strategy (round_robin, least_loaded, priority, auto)")
	cmd.Flags().StringSliceVar(&order, "order", nil, "Worker order for the priority strategy")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the task finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait with --wait")

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			out.Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (QUEUED, DISPATCHED, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "Filter by worker ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "Read from the task archive")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			artifacts := ""
			if task.Result != nil {
				artifacts = strings.Join(task.Result.Artifacts, ",")
			}

			out.Print(
				append(taskHeaders, "SECONDS", "ARTIFACTS"),
				[][]string{append(taskRow(*task), formatUnits(task.GenerationSeconds), artifacts)},
				task,
			)
			return nil
		},
	}
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.CancelTask(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task cancelled: %s", task.ID))
			return nil
		},
	}
}

// parseParams разбирает KEY=VALUE. Значение, похожее на JSON (число, bool,
// массив), декодируется, остальное остаётся строкой.
func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter format %q, expected KEY=VALUE", kv)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func formatUnits(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
