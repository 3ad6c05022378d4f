// Package openaicompat implements llm.Provider for local inference servers
// that speak the OpenAI Chat Completions API: Foundry Local, LM Studio,
// llama.cpp server and vLLM.
//
// Transport failures keep the original error as llm.Error.Cause, so callers
// can tell a refused connection from a DNS failure or a timeout.
//
//	p := openaicompat.New(openaicompat.Config{
//	    Name:       "foundry-local",
//	    BaseURL:    "http://localhost:5273",
//	    StatusPath: "/openai/status",
//	}, logger)
package openaicompat
