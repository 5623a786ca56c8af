package contracts

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/Hamnivore/used-item-aggregator/schemas"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	StreamCommandSchema = "StreamCommand/1.0.0"
	SourceEventSchema   = "SourceEvent/1.0.0"
)

var (
	compileOnce     sync.Once
	compiledSchemas map[string]*jsonschema.Schema
	compileErr      error
)

// loadSchemas compiles every embedded schema once. All files are added as
// resources first so that schemas can $ref each other.
func loadSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true

		var paths []string
		for _, root := range []string{"commands", "events"} {
			err := fs.WalkDir(schemas.SchemasFS, root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(path, ".json") {
					return nil
				}
				file, err := schemas.SchemasFS.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()
				if err := compiler.AddResource(path, file); err != nil {
					return fmt.Errorf("failed to add schema resource %s: %w", path, err)
				}
				paths = append(paths, path)
				return nil
			})
			if err != nil {
				compileErr = fmt.Errorf("error walking schema resources: %w", err)
				return
			}
		}

		compiled := make(map[string]*jsonschema.Schema, len(paths))
		for _, path := range paths {
			schema, err := compiler.Compile(path)
			if err != nil {
				compileErr = fmt.Errorf("could not compile schema %s: %w", path, err)
				return
			}
			compiled[keyFromPath(path)] = schema
		}
		compiledSchemas = compiled
	})
	return compiledSchemas, compileErr
}

// keyFromPath turns "events/source-event/v1.json" into "SourceEvent/1.0.0".
func keyFromPath(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, ".json"), "/")
	if len(parts) != 3 {
		return ""
	}

	caser := cases.Title(language.English)
	var name strings.Builder
	for _, p := range strings.Split(parts[1], "-") {
		name.WriteString(caser.String(p))
	}

	version := strings.TrimPrefix(parts[2], "v") + ".0.0"
	return name.String() + "/" + version
}

// Validate checks body against the schema registered under key.
func Validate(key string, body []byte) error {
	compiled, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := compiled[key]
	if !ok {
		return fmt.Errorf("schema '%s' not found", key)
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("message body is not a valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("JSON schema validation failed: %w", err)
	}
	return nil
}

func ValidateCommand(body []byte) error {
	return Validate(StreamCommandSchema, body)
}

func ValidateEvent(body []byte) error {
	return Validate(SourceEventSchema, body)
}
