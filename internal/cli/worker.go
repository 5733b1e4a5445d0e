package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт группу команд для управления воркерами.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage workers",
	}

	cmd.AddCommand(
		newWorkerListCmd(clientFn, outputFn),
		newWorkerRegisterCmd(clientFn, outputFn),
		newWorkerShowCmd(clientFn, outputFn),
		newWorkerRemoveCmd(clientFn, outputFn),
	)

	return cmd
}

var workerHeaders = []string{"ID", "KIND", "ENDPOINT", "ONLINE", "BUSY", "FREE", "TOTAL"}

func workerRow(w WorkerResponse) []string {
	return []string{
		w.ID,
		w.Kind,
		w.Endpoint,
		strconv.FormatBool(w.Online),
		strconv.FormatBool(w.Busy),
		formatUnits(w.AvailableUnits),
		formatUnits(w.TotalCapacityUnits),
	}
}

func newWorkerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListWorkersOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workers, err := client.ListWorkers(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(workers))
			for i, w := range workers {
				rows[i] = workerRow(w)
			}

			out.Print(workerHeaders, rows, workers)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Filter by kind (local-render-server, remote-gpu-worker)")
	cmd.Flags().BoolVar(&opts.Online, "online", false, "Only online workers")
	cmd.Flags().BoolVar(&opts.Idle, "idle", false, "Only idle workers")

	return cmd
}

func newWorkerRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req RegisterWorkerRequest

	cmd := &cobra.Command{
		Use:   "register ID",
		Short: "Register a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req.ID = args[0]
			worker, err := client.RegisterWorker(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Worker registered: %s (online: %t)", worker.ID, worker.Online))
			out.Print(workerHeaders, [][]string{workerRow(*worker)}, worker)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "Worker base URL")
	cmd.Flags().StringVar(&req.Kind, "kind", "remote-gpu-worker", "Worker kind (local-render-server, remote-gpu-worker)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().Float64Var(&req.TotalCapacityUnits, "capacity", 0, "Total capacity units (reported by the worker if not specified)")
	cmd.MarkFlagRequired("endpoint")

	return cmd
}

func newWorkerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show worker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			worker, err := client.GetWorker(args[0])
			if err != nil {
				return err
			}

			out.Print(
				append(workerHeaders, "HEARTBEAT"),
				[][]string{append(workerRow(*worker), worker.LastHeartbeatAt)},
				worker,
			)
			return nil
		},
	}
}

func newWorkerRemoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"unregister"},
		Short:   "Unregister a worker",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			worker, err := client.UnregisterWorker(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Worker removed: %s", worker.ID))
			return nil
		},
	}
}
