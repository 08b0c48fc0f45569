package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/urfave/cli"

	"github.com/woxQAQ/wasm-contracts/pkg/contract/counter"
)

func schemaCommand() cli.Command {
	return cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema of the counter contract's documents",
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "action",
				Usage: "Print the action schema instead of the state schema",
			},
		},
		Action: func(c *cli.Context) error {
			var v interface{} = &counter.State{}
			if c.Bool("action") {
				v = &counter.Action{}
			}
			b, err := generateSchema(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(b))
			return nil
		},
	}
}

// generateSchema reflects v into a JSON schema (draft 2020-12).
func generateSchema(v interface{}) ([]byte, error) {
	// Contracts carry unknown state fields through unchanged.
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(v)

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}
