package main

import (
	"os"

	"github.com/theapemachine/supabase-a2a/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
