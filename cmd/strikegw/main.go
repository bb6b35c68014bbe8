package main

import (
	"os"
)

const version = "0.1.0"

// configEnv names the environment variable consulted when -config is omitted.
const configEnv = "STRIKEGW_CONFIG"

func main() {
	os.Exit(runStart(os.Args[1:]))
}

// resolveConfigPath applies the -config fallback chain.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return "config.yaml"
}
