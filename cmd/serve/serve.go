package serve

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modelkeeper/cmd/root"
	"modelkeeper/internal/config"
	"modelkeeper/internal/serving"
)

type serveFlags struct {
	host          string
	port          int
	backlog       int
	workingDir    string
	apiWorkers    int
	prometheusDir string
	tls           config.TLSOptions
}

func (f *serveFlags) register(cmd *cobra.Command, withWorkers bool) {
	defaults := config.Config
	cmd.Flags().StringVar(&f.host, "host", defaults.Server.Host, "API server bind host")
	cmd.Flags().IntVar(&f.port, "port", defaults.Server.Port, "API server bind port")
	cmd.Flags().IntVar(&f.backlog, "backlog", defaults.Server.Backlog, "Listen backlog size")
	cmd.Flags().StringVar(&f.workingDir, "working-dir", ".", "Working directory of the service")
	if withWorkers {
		cmd.Flags().IntVar(&f.apiWorkers, "api-workers", 0, "API worker count, 0 means one per CPU")
	}
	cmd.Flags().StringVar(&f.prometheusDir, "prometheus-dir", defaults.Metrics.MultiprocDir, "Multiprocess metrics directory")
	cmd.Flags().StringVar(&f.tls.Keyfile, "ssl-keyfile", defaults.TLS.Keyfile, "SSL key file")
	cmd.Flags().StringVar(&f.tls.Certfile, "ssl-certfile", defaults.TLS.Certfile, "SSL certificate file")
	cmd.Flags().StringVar(&f.tls.KeyfilePassword, "ssl-keyfile-password", defaults.TLS.KeyfilePassword, "SSL keyfile password")
	cmd.Flags().IntVar(&f.tls.Version, "ssl-version", defaults.TLS.Version, "Minimum TLS version (10/11/12/13)")
	cmd.Flags().IntVar(&f.tls.CertReqs, "ssl-cert-reqs", defaults.TLS.CertReqs, "Client certificate requirement (1=optional, 2=required)")
	cmd.Flags().StringVar(&f.tls.CACerts, "ssl-ca-certs", defaults.TLS.CACerts, "CA certificates file")
	cmd.Flags().StringVar(&f.tls.Ciphers, "ssl-ciphers", defaults.TLS.Ciphers, "Cipher suite list")
}

func (f *serveFlags) serveConfig(serviceID string, reload bool) *config.ServeConfig {
	return &config.ServeConfig{
		ServiceID:     serviceID,
		WorkingDir:    f.workingDir,
		Host:          f.host,
		Port:          f.port,
		Backlog:       f.backlog,
		APIWorkers:    f.apiWorkers,
		PrometheusDir: f.prometheusDir,
		Reload:        reload,
		TLS:           f.tls,
	}
}

var prodFlags serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve [service]",
	Short: "以生产模式启动服务",
	Long:  `为每个runner启动独立进程组，为API服务器启动worker进程组，runner地址在启动时注入API服务器`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID := "."
		if len(args) == 1 {
			serviceID = args[0]
		}
		if err := serving.ServeProduction(context.Background(), prodFlags.serveConfig(serviceID, false)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	prodFlags.register(serveCmd, true)
	root.RootCmd.AddCommand(serveCmd)

	serveCmd.Example = `  modelkeeper serve . --port 3000
  modelkeeper serve ./service.yaml --api-workers 4 --ssl-keyfile key.pem --ssl-certfile cert.pem`
}
