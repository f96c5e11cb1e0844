package serve

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modelkeeper/cmd/root"
	"modelkeeper/internal/serving"
)

var devFlags serveFlags
var devReload bool

var devCmd = &cobra.Command{
	Use:   "dev [service]",
	Short: "以开发模式启动服务",
	Long:  `单worker进程，runner在进程内执行；--reload时监视文件变更自动重启，用隔离性换取快速迭代`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID := "."
		if len(args) == 1 {
			serviceID = args[0]
		}
		if err := serving.ServeDevelopment(context.Background(), devFlags.serveConfig(serviceID, devReload)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	devFlags.register(devCmd, false)
	devCmd.Flags().BoolVar(&devReload, "reload", false, "Restart the dev server when source files change")
	root.RootCmd.AddCommand(devCmd)

	devCmd.Example = `  modelkeeper dev . --reload`
}
