package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modelkeeper/cmd/root"
	"modelkeeper/internal/worker"
)

// Internal entry points. Users never run these directly; the supervisor (or a
// standalone parent) re-invokes the modelkeeper executable with them.

func registerWorkerFlags(cmd *cobra.Command, opts *worker.Options) {
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Bind address: fd://N from the supervisor, or a literal tcp://host:port / unix:///path for standalone launch")
	cmd.Flags().IntVar(&opts.Backlog, "backlog", 2048, "Listen backlog size")
	cmd.Flags().StringVar(&opts.WorkingDir, "working-dir", ".", "Working directory of the service")
	cmd.Flags().StringVar(&opts.PrometheusDir, "prometheus-dir", "", "Multiprocess metrics directory")
	cmd.Flags().IntVar(&opts.WorkerID, "worker-id", 0, "Worker identity assigned by the supervisor; 0 starts a standalone parent")
	cmd.Flags().StringVar(&opts.TLS.Keyfile, "ssl-keyfile", "", "SSL key file")
	cmd.Flags().StringVar(&opts.TLS.Certfile, "ssl-certfile", "", "SSL certificate file")
	cmd.Flags().StringVar(&opts.TLS.KeyfilePassword, "ssl-keyfile-password", "", "SSL keyfile password")
	cmd.Flags().IntVar(&opts.TLS.Version, "ssl-version", 0, "Minimum TLS version (10/11/12/13)")
	cmd.Flags().IntVar(&opts.TLS.CertReqs, "ssl-cert-reqs", 0, "Client certificate requirement (1=optional, 2=required)")
	cmd.Flags().StringVar(&opts.TLS.CACerts, "ssl-ca-certs", "", "CA certificates file")
	cmd.Flags().StringVar(&opts.TLS.Ciphers, "ssl-ciphers", "", "Cipher suite list")
	cmd.MarkFlagRequired("bind")
}

var apiOpts = worker.Options{}

var apiWorkerCmd = &cobra.Command{
	Use:    "api-worker [service]",
	Short:  "内部命令: API服务器worker进程入口",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiOpts.ServiceID = "."
		if len(args) == 1 {
			apiOpts.ServiceID = args[0]
		}
		if err := worker.RunAPIServer(context.Background(), apiOpts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return nil
	},
}

var runnerOpts = worker.Options{}

var runnerWorkerCmd = &cobra.Command{
	Use:    "runner-worker [service]",
	Short:  "内部命令: runner worker进程入口",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runnerOpts.ServiceID = "."
		if len(args) == 1 {
			runnerOpts.ServiceID = args[0]
		}
		if err := worker.RunRunner(context.Background(), runnerOpts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	registerWorkerFlags(apiWorkerCmd, &apiOpts)
	apiWorkerCmd.Flags().StringVar(&apiOpts.RunnerMap, "runner-map", "", "Serialized runner address map; falls back to MODELKEEPER_RUNNER_MAP")
	apiWorkerCmd.Flags().BoolVar(&apiOpts.Development, "development", false, "Run runners in-process (development mode)")

	registerWorkerFlags(runnerWorkerCmd, &runnerOpts)
	runnerWorkerCmd.Flags().StringVar(&runnerOpts.RunnerName, "runner-name", "", "Name of the runner this worker serves")
	runnerWorkerCmd.MarkFlagRequired("runner-name")

	root.RootCmd.AddCommand(apiWorkerCmd)
	root.RootCmd.AddCommand(runnerWorkerCmd)
}
