package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "modelkeeper",
	Short: "模型服务多进程编排器",
	Long:  `modelkeeper把一份服务声明(N个runner+一个API服务器)编排成受监督的多进程部署: 分配socket、构造worker启动参数、监督进程生命周期`,
}
