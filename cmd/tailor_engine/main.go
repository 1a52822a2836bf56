// Package main provides the entry point for the resume tailoring engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tailor_engine",
	Short: "Resume customization engine",
	Long:  "Tailors a resume to a target job description through a staged evaluate, plan, implement and verify pipeline, available as a CLI run or a REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
