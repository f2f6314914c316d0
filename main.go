// TaarYa is an agentic research assistant for astronomy. It answers
// natural-language questions by routing them through an LLM planner to
// retrieval tools: semantic search over paper chunks, spatial cone search
// over a star catalog, knowledge-graph traversal, and sandboxed code
// execution.
package main

import (
	"fmt"
	"os"

	"github.com/taarya/taarya/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
