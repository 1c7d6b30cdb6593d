// Package tracing wires optional Langfuse tracing for embedding calls.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/docrank/internal/config"
	"github.com/54b3r/docrank/internal/version"
)

// defaultHost is a self-hosted Langfuse on its default port.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit so buffered traces are sent. When Langfuse is not
// configured the handler and flush function are nil and ok is false.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := config.EnvOr("LANGFUSE_PUBLIC_KEY", "")
	secretKey := config.EnvOr("LANGFUSE_SECRET_KEY", "")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      config.EnvOr("LANGFUSE_HOST", defaultHost),
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "docrank",
		Release:   version.Version,
	})
	return handler, flush, true
}
