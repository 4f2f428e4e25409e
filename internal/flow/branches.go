package flow

import (
	"context"
	"fmt"
)

// WelcomeMessage is the greeting branch output.
const WelcomeMessage = `Hello, I am your assistant for assessing IT artefacts with a focus on technology modernization.
I analyze the code, configuration, documents and other artefacts of your system and produce a
detailed report that measures its **degree of modernity** against criteria such as:

- Use of **current and sustainable** technologies.
- Adherence to **good practices** in architecture and security.
- Level of automation and integration.
- Scalability and modularity.
- Compatibility with cloud and DevOps environments.

To get started, send for example:
` + "```bash" + `
# Technologies used in your project
Java 8, Spring Boot 2.3, MySQL 5.7, Angular 12
` + "```"

// Handler produces the output of a simple branch.
type Handler interface {
	Handle(ctx context.Context, payload string) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload string) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

// GreetingHandler returns WelcomeMessage for any payload.
type GreetingHandler struct{}

// Handle implements Handler.
func (GreetingHandler) Handle(context.Context, string) (string, error) {
	return WelcomeMessage, nil
}

// CodeAnalyzer analyzes source code submitted to the code branch.
type CodeAnalyzer = Handler

// PlaceholderCodeAnalyzer is the default CodeAnalyzer. Source code analysis
// is not implemented yet.
type PlaceholderCodeAnalyzer struct{}

// Handle implements Handler.
func (PlaceholderCodeAnalyzer) Handle(_ context.Context, payload string) (string, error) {
	return fmt.Sprintf("Source code analysis is not available yet (received %d bytes). "+
		"Send a list of technologies to get a modernization report.", len(payload)), nil
}
