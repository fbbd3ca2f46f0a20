// Package council runs the design personas that turn an operator request
// into an engineered build. Each persona pairs a role prompt with a
// response schema and a typed parse. The personas share one LLM client
// and never call each other; the pipeline sequences them.
package council

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"quadforge/internal/gemini"
	"quadforge/internal/logging"
)

// LLMClient is the slice of the Gemini client the personas need.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt string, schema map[string]interface{}) (string, error)
}

// Council bundles the personas so callers wire one LLM client and get
// the whole bench.
type Council struct {
	Architect   *Architect
	Engineer    *Engineer
	Sourcer     *Sourcer
	Inspector   *Inspector
	Builder     *Builder
	Optimizer   *Optimizer
	Interviewer *Interviewer
}

// New seats every persona on the given client.
func New(llm LLMClient) *Council {
	return &Council{
		Architect:   &Architect{llm: llm},
		Engineer:    &Engineer{llm: llm},
		Sourcer:     &Sourcer{llm: llm},
		Inspector:   &Inspector{llm: llm},
		Builder:     &Builder{llm: llm},
		Optimizer:   &Optimizer{llm: llm},
		Interviewer: &Interviewer{llm: llm},
	}
}

// callJSON runs one persona round trip: schema-constrained completion,
// prompt-level retry when the model rejects the schema, then JSON
// recovery and decode into out.
func callJSON(ctx context.Context, llm LLMClient, persona, system, user string, schema map[string]interface{}, out interface{}) error {
	raw, err := llm.CompleteWithSchema(ctx, system, user, schema)
	if errors.Is(err, gemini.ErrSchemaNotSupported) {
		logging.CouncilWarn("[%s] model rejected response schema, retrying prompt-level", persona)
		raw, err = llm.CompleteWithSystem(ctx, system, user)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", persona, err)
	}
	payload, ok := ExtractJSON(raw)
	if !ok {
		logging.CouncilError("[%s] reply carried no JSON object (len=%d)", persona, len(raw))
		return fmt.Errorf("%s: no JSON object in reply", persona)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", persona, err)
	}
	logging.CouncilDebug("[%s] reply decoded (%d bytes)", persona, len(payload))
	return nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ExtractJSON recovers a JSON object from a model reply that may wrap
// it in markdown fences or surrounding prose. A fenced block wins;
// otherwise the widest brace-delimited slice is tried.
func ExtractJSON(text string) (string, bool) {
	candidate := ""
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return "", false
		}
		candidate = text[start : end+1]
	}
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// mustJSON marshals persona payloads that are built from in-process
// values and cannot fail.
func mustJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
