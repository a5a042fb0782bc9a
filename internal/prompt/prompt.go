// Package prompt assembles the generation prompt from a question and its
// retrieved context. The templates are tuned prompt text and must not be
// reworded.
package prompt

import (
	"fmt"
	"strings"
)

const contextTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer from the context provided, just say that you don't know, don't try to make up an answer. Keep the answer concise.

Context:
%s

Question: %s

Answer:`

const bareTemplate = `Question: %s

Answer:`

// Assemble renders the full prompt. With passages present they are joined
// in retrieval order, separated by blank lines, under the context template;
// with none (retrieval disabled, degraded, or empty) the bare template is
// used.
func Assemble(question string, passages []string) string {
	if len(passages) == 0 {
		return fmt.Sprintf(bareTemplate, question)
	}
	return fmt.Sprintf(contextTemplate, strings.Join(passages, "\n\n"), question)
}
