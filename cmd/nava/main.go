// Command nava runs the Nava agent gateway.
//
// Start the server:
//
//	nava serve --config ~/.nava/nava.json
//
// Run one prompt:
//
//	nava run "build a landing page for a bakery"
//
// Configuration can also be provided through NAVA_* environment variables
// (for example NAVA_LLM_MODEL) and the provider key variables
// OPENAI_API_KEY, OPENROUTER_API_KEY and ANTHROPIC_API_KEY.
package main

import (
	"os"

	"github.com/harun/nava/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
