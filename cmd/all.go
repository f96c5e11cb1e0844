package cmd

import (
	_ "modelkeeper/cmd/root"
	_ "modelkeeper/cmd/serve"
	_ "modelkeeper/cmd/worker"
)
