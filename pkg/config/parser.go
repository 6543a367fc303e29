package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// WorkflowPath is the CUE path a workflow is read from. A CUE file without a
// top-level "workflow" field is decoded from its root.
const WorkflowPath = "workflow"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]*$`)

// Parser parses and validates workflow files.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewParser creates a new workflow parser.
func NewParser() *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})

	return &Parser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      v,
	}
}

// DetectFormat returns the workflow format implied by the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported workflow file %s (want .yaml, .yml, .json or .cue)", path)
	}
}

// ParseFile reads and parses the workflow at path. Problems inside the file are
// reported in ParsedWorkflow.Errors; the error return is for I/O failures.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParsedWorkflow, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}

	return p.Parse(ctx, content, format, path), nil
}

// Parse decodes and validates workflow content.
func (p *Parser) Parse(ctx context.Context, content []byte, format Format, source string) *ParsedWorkflow {
	if source == "" {
		source = "inline"
	}
	parsed := &ParsedWorkflow{
		Source:   source,
		Format:   format,
		ParsedAt: time.Now(),
	}

	var wf WorkflowSpec
	var errs []ValidationError
	switch format {
	case FormatYAML:
		errs = p.decodeYAML(content, source, &wf)
	case FormatJSON:
		errs = p.decodeJSON(content, source, &wf)
	case FormatCUE:
		errs = p.decodeCUE(content, source, &wf)
	default:
		errs = []ValidationError{{File: source, Message: fmt.Sprintf("unknown format %q", format)}}
	}
	if len(errs) > 0 {
		parsed.Errors = errs
		return parsed
	}

	parsed.Workflow = &wf
	parsed.Errors = p.Validate(ctx, &wf)
	for i := range parsed.Errors {
		if parsed.Errors[i].File == "" {
			parsed.Errors[i].File = source
		}
	}
	return parsed
}

// Validate checks a workflow against its struct constraints and the CUE schema.
func (p *Parser) Validate(ctx context.Context, wf *WorkflowSpec) []ValidationError {
	var errs []ValidationError

	if err := p.validator.Struct(wf); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []ValidationError{{Message: err.Error()}}
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Path:    trimNamespace(fe.Namespace()),
				Message: describeFieldError(fe),
			})
		}
		// The schema would restate the same problems.
		return errs
	}

	if err := p.schemaRegistry.ValidateWorkflow(ctx, wf); err != nil {
		errs = append(errs, p.convertCUEErrors(err)...)
	}

	for _, s := range wf.Skills {
		if s.Retry == nil {
			continue
		}
		if _, err := s.Retry.ToRetryConfig(); err != nil {
			errs = append(errs, ValidationError{Path: "skills." + s.Name + ".retry", Message: err.Error()})
		}
	}
	if _, err := wf.Retry.ToRetryConfig(); err != nil {
		errs = append(errs, ValidationError{Path: "retry", Message: err.Error()})
	}

	return errs
}

func (p *Parser) decodeYAML(content []byte, source string, wf *WorkflowSpec) []ValidationError {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(wf); err != nil {
		return []ValidationError{yamlError(source, err)}
	}
	return nil
}

func (p *Parser) decodeJSON(content []byte, source string, wf *WorkflowSpec) []ValidationError {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	if err := dec.Decode(wf); err != nil {
		return []ValidationError{{File: source, Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	wf.Inputs = normalizeNumbers(wf.Inputs)
	for i := range wf.Skills {
		wf.Skills[i].Config = normalizeNumbers(wf.Skills[i].Config)
	}
	return nil
}

func (p *Parser) decodeCUE(content []byte, source string, wf *WorkflowSpec) []ValidationError {
	val := p.ctx.CompileBytes(content, cue.Filename(source))
	if err := val.Err(); err != nil {
		return p.convertCUEErrors(err)
	}

	if sub := val.LookupPath(cue.ParsePath(WorkflowPath)); sub.Exists() {
		val = sub
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return p.convertCUEErrors(err)
	}

	if err := val.Decode(wf); err != nil {
		return p.convertCUEErrors(err)
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (p *Parser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Message: cueerrors.Details(e, nil),
			Path:    strings.Join(e.Path(), "."),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	return validationErrors
}

// GetSchemaRegistry returns the schema registry.
func (p *Parser) GetSchemaRegistry() *SchemaRegistry {
	return p.schemaRegistry
}

// LoadWorkflow parses path and returns the workflow, or an error listing every problem.
func LoadWorkflow(ctx context.Context, path string) (*WorkflowSpec, error) {
	parsed, err := NewParser().ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return parsed.Workflow, nil
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func yamlError(source string, err error) ValidationError {
	ve := ValidationError{File: source, Message: strings.TrimPrefix(err.Error(), "yaml: ")}
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		fmt.Sscanf(m[1], "%d", &ve.Line)
	}
	return ve
}

// trimNamespace drops the root struct name from a validator namespace.
func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "unique":
		if fe.Param() != "" {
			return fmt.Sprintf("must have unique %s values", strings.ToLower(fe.Param()))
		}
		return "must not contain duplicates"
	case "duration":
		return fmt.Sprintf("invalid duration %q", fe.Value())
	case "identifier":
		return fmt.Sprintf("invalid identifier %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// normalizeNumbers replaces json.Number values with int64 or float64.
func normalizeNumbers(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]interface{}:
		return normalizeNumbers(x)
	case []interface{}:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	default:
		return v
	}
}
