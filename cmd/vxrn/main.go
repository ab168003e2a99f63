// vxrn bundles and serves React Native apps from one source tree.
package main

import (
	"os"

	"github.com/vxrn/vxrn/cmd"
	_ "github.com/vxrn/vxrn/cmd/build"
	_ "github.com/vxrn/vxrn/cmd/dev"
	"github.com/vxrn/vxrn/internal/output"
)

func main() {
	cmd.Out = output.New()
	if err := cmd.RootCmd.Execute(); err != nil {
		cmd.Out.Error("%v", err)
		os.Exit(1)
	}
}
