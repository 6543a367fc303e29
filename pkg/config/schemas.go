package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	for name, def := range map[string]string{
		"workflow": "#Workflow",
		"skill":    "#Skill",
		"retry":    "#Retry",
	} {
		if err := sr.RegisterSchema(name, builtinWorkflowSchema, def); err != nil {
			panic(fmt.Sprintf("built-in schema %s: %v", name, err))
		}
	}

	return sr
}

// RegisterSchema compiles source and registers the definition def under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = schema
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. A cue.Context is not
// safe for concurrent use, so validation is serialized.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return schema.Unify(dataVal).Validate(cue.Concrete(true))
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateWorkflow validates a workflow against the workflow schema.
func (sr *SchemaRegistry) ValidateWorkflow(ctx context.Context, wf *WorkflowSpec) error {
	return sr.ValidateAgainstSchema(ctx, "workflow", wf)
}

const builtinWorkflowSchema = `
#Identifier: string & =~"^[a-zA-Z_][a-zA-Z0-9_.-]*$"

#Duration: string & =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Retry: {
	max_retries?: int & >=1 & <=100
	strategy?:    "exponential" | "linear" | "fixed"
	base_delay?:  #Duration
	max_delay?:   #Duration
}

#Skill: {
	name:        #Identifier
	uses:        string & !=""
	depends_on?: [...#Identifier]
	config?: {[string]: _}
	map_input?: {[string]: string}
	retry?: #Retry
}

#Workflow: {
	name:          #Identifier
	description?:  string
	mode?:         "quiet" | "verbose"
	timeout?:      #Duration
	node_timeout?: #Duration
	inputs?: {[string]: _}
	retry?: #Retry
	skills: [#Skill, ...#Skill]
}
`
