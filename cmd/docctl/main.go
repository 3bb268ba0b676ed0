// Package main 是 docctl 命令行工具的入口点。
package main

import (
	"os"

	"github.com/joho/godotenv"

	"pai-docqa-go/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
