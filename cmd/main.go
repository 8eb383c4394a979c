package main

import (
	"fmt"
	"os"

	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	root := &cobra.Command{
		Use:          "clipwave",
		Short:        "Turn a video link and an instruction into a trimmed highlight video",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.AddCommand(newServeCommand(), newClipCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
