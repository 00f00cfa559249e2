package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:          "voiceforth",
		Short:        "Voice bridge to a shared Forth interpreter",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config/config.yaml)")

	root.AddCommand(serveCMD(&cfgPath), consoleCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
