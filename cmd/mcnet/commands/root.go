package commands

import (
	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

// RootCmd is the root command for mcnet
var RootCmd = &cobra.Command{
	Use:              "mcnet",
	Short:            "local consensus network orchestrator",
	TraverseChildren: true,
}
