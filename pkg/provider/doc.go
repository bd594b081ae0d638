// Package provider holds the model-inference plane: the registry of
// configured providers, the cached model catalog, identifier parsing and
// resolution, and the protocol-agnostic Invoker interface. Each adapter
// implementation (openai, anthropic, openrouter, custom) handles its own
// backend protocol internally. The package operates on its own types
// (Request, Completion, ModelInfo), keeping backend protocol details
// invisible to the rest of the system.
package provider
