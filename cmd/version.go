package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version preenchida no build via -ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Exibir versão da aplicação",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("container-autopilot versão %s (%s/%s)\n",
			Version, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
