package main

import (
	_ "modelkeeper/cmd"
	"modelkeeper/cmd/root"
	"modelkeeper/internal/config"
	"modelkeeper/internal/logger"
	"os"
)

func main() {
	// serve/dev是前台编排进程，日志同时进控制台；worker进程只写日志文件
	isServerMode := len(os.Args) > 1 && (os.Args[1] == "serve" || os.Args[1] == "dev")

	logger.InitLogger(config.Config.Log.Path, config.Config.Log.Level, isServerMode)

	if err := root.RootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
	os.Exit(0)
}
