// Package openaicompat provides the shared HTTP client for any
// OpenAI-compatible Chat Completions backend. It handles request
// serialization, response parsing, error mapping, and sanitized request
// tracing.
//
// Invoker adapters (openai, openrouter, custom) embed the Client from
// this package and delegate their Complete/ListModels calls to it.
package openaicompat
