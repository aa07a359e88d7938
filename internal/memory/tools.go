package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seenimoa/tradeswarm/internal/llm"
)

// GetMemoriesTool exposes similarity search over one store as an LLM tool.
// The collection binding is fixed at construction; the model only supplies
// the situation text and how many matches it wants.
func GetMemoriesTool(store *Store, defaultK int) llm.Tool {
	if defaultK <= 0 {
		defaultK = 2
	}
	return llm.Tool{
		Name: "get_memories",
		Description: fmt.Sprintf(
			"Retrieve lessons from past situations similar to the current one (collection %q).", store.Name()),
		Parameters: llm.ObjectSchema("Memory query",
			map[string]*llm.JSONSchema{
				"situation": llm.StringProp("Description of the current market situation"),
				"n_matches": llm.IntProp("Number of similar situations to return"),
			},
			"situation",
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Situation string `json:"situation"`
				NMatches  int    `json:"n_matches"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("memory: bad get_memories args: %w", err)
			}
			k := in.NMatches
			if k <= 0 {
				k = defaultK
			}
			matches, err := store.Query(ctx, in.Situation, k)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(matches)
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}
}

// AddMemoriesTool exposes appending situation/recommendation pairs to one
// store as an LLM tool.
func AddMemoriesTool(store *Store) llm.Tool {
	return llm.Tool{
		Name: "add_memories",
		Description: fmt.Sprintf(
			"Store situation/recommendation pairs for future recall (collection %q).", store.Name()),
		Parameters: llm.ObjectSchema("Memory records",
			map[string]*llm.JSONSchema{
				"pairs": llm.ArrayProp("Situation/recommendation pairs to store",
					llm.ObjectSchema("One record",
						map[string]*llm.JSONSchema{
							"situation":      llm.StringProp("The market situation"),
							"recommendation": llm.StringProp("The advice that applied to it"),
						},
						"situation", "recommendation",
					)),
			},
			"pairs",
		),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Pairs []Pair `json:"pairs"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("memory: bad add_memories args: %w", err)
			}
			n, err := store.Append(ctx, in.Pairs)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("stored %d memories", n), nil
		},
	}
}
