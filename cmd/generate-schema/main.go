// Command generate-schema writes a JSON Schema describing the DittoBox
// configuration file, for editor completion and CI validation of configs.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittobox/pkg/config"
)

func main() {
	output := flag.String("o", "config.schema.json", "Output file ('-' for stdout)")
	flag.Parse()

	// Keys follow the mapstructure tags, which are what viper reads from
	// YAML, TOML and DITTOBOX_* variables.
	reflector := jsonschema.Reflector{
		FieldNameTag:               "mapstructure",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "DittoBox Configuration"
	schema.Description = "Configuration file for the dittobox server (see 'dittobox init')"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*output, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}
