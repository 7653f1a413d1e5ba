package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/the-cubic-cat/sfera/internal/net/proto"
)

type message struct {
	file        string
	title       string
	description string
	value       any
}

var messages = []message{
	{"frame.schema.json", "Frame", "Render frame broadcast to every spectator.", new(proto.FrameV1)},
	{"command.schema.json", "Command", "Command line sent by a client.", new(proto.ClientMessage)},
	{"command-ack.schema.json", "Command Ack", "Reply to a command that ran.", new(proto.CommandAckV1)},
	{"command-reject.schema.json", "Command Reject", "Reply to a command that was refused or failed.", new(proto.CommandRejectV1)},
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the JSON schemas into")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	for _, msg := range messages {
		schema := buildSchema(msg)
		if err := writeSchema(filepath.Join(outDir, msg.file), schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", msg.file, err)
			os.Exit(1)
		}
	}
}

func buildSchema(msg message) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(msg.value)
	schema.Title = fmt.Sprintf("sfera %s (protocol v%d)", msg.title, proto.Version)
	schema.Description = msg.description
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
