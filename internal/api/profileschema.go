package api

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// profileBundleSchemaJSON requires the three tar members a profile bundle
// must carry before createProfile hands it to the origin, the same
// CompileString/Validate sequence internal/config uses for cluster
// configuration.
const profileBundleSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["kernel", "initrd", "kargs"],
	"properties": {
		"kernel": {"type": "string", "minLength": 1},
		"initrd": {"type": "string", "minLength": 1},
		"kargs":  {"type": "string"}
	}
}`

// validateProfileBundle checks that a tar-extracted property set names
// every member a profile bundle must carry. props values are either the
// plain kargs string or base64-encoded file payloads; the schema only
// cares that the keys are present and non-empty, not their encoding.
func validateProfileBundle(props map[string]string) error {
	sch, err := jsonschema.CompileString("profile-bundle.json", profileBundleSchemaJSON)
	if err != nil {
		return fmt.Errorf("compile profile bundle schema: %w", err)
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode profile bundle: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode profile bundle: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("profile bundle validation: %w", err)
	}
	return nil
}
