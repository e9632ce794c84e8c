// Command docengine enhances guideline documents with citations and
// annotations drawn from a reference corpus.
package main

import (
	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/commands"
)

func main() {
	commands.Execute()
}
