package collection

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNoDescriptor is returned by LoadTask when input.json does not exist.
var ErrNoDescriptor = errors.New("collection: task descriptor not found")

// ErrInvalidDescriptor is matched (via errors.Is) by every error LoadTask
// returns for a descriptor that exists but cannot be used.
var ErrInvalidDescriptor = errors.New("collection: invalid task descriptor")

//go:embed schema/input.schema.json
var descriptorSchema []byte

var (
	compiledSchema    *gojsonschema.Schema
	compiledSchemaErr error
	compileSchemaOnce sync.Once
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("bare_filename", isBareFilename); err != nil {
		panic(err)
	}
	return v
}

// isBareFilename rejects names with directory components, so every document
// resolves inside the collection's PDFs/ folder.
func isBareFilename(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "." && name != ".." && filepath.Base(name) == name && !strings.Contains(name, "\\")
}

// Task is the parsed input.json of one collection.
type Task struct {
	// Persona describes who the report is for.
	Persona Persona `json:"persona"`

	// JobToBeDone is the task the persona is trying to accomplish.
	JobToBeDone Job `json:"job_to_be_done"`

	// Documents lists the PDFs to rank, in descriptor order.
	Documents []Document `json:"documents" validate:"dive"`

	// ChallengeInfo is carried through untouched when present.
	ChallengeInfo map[string]any `json:"challenge_info,omitempty"`
}

// Persona is the descriptor's persona object.
type Persona struct {
	Role string `json:"role"`
}

// Job is the descriptor's job_to_be_done object.
type Job struct {
	Task string `json:"task"`
}

// Document is one entry of the descriptor's documents list.
type Document struct {
	// Filename is resolved against the collection's PDFs/ directory.
	Filename string `json:"filename" validate:"required,bare_filename"`

	// Title is an optional human label; ranking uses the filename stem.
	Title string `json:"title,omitempty"`
}

// Filenames returns the document filenames in descriptor order.
func (t *Task) Filenames() []string {
	out := make([]string, 0, len(t.Documents))
	for _, d := range t.Documents {
		out = append(out, d.Filename)
	}
	return out
}

// Goal synthesizes the natural-language request every block is ranked
// against.
func (t *Task) Goal() string {
	return fmt.Sprintf("As a %s, I need to %s. Find the most relevant sections that help with this task.",
		t.Persona.Role, t.JobToBeDone.Task)
}

// DescriptorError lists every problem found in one descriptor.
type DescriptorError struct {
	// Path is the descriptor file.
	Path string
	// Problems holds one human-readable line per violation.
	Problems []string
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("collection: invalid task descriptor %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is match ErrInvalidDescriptor.
func (e *DescriptorError) Unwrap() error {
	return ErrInvalidDescriptor
}

// LoadTask reads and validates the collection's input.json.
func LoadTask(c Collection) (*Task, error) {
	path := c.DescriptorPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDescriptor, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidDescriptor, path, err)
	}

	return ParseTask(path, data)
}

// ParseTask validates raw descriptor bytes against the embedded JSON Schema
// and decodes them. path is only used in error messages.
func ParseTask(path string, data []byte) (*Task, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		// gojsonschema fails here when the document is not JSON at all.
		return nil, &DescriptorError{Path: path, Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			problems = append(problems, field+": "+desc.Description())
		}
		return nil, &DescriptorError{Path: path, Problems: problems}
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, &DescriptorError{Path: path, Problems: []string{err.Error()}}
	}

	if err := validate.Struct(&task); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return nil, &DescriptorError{Path: path, Problems: problems}
		}
		return nil, &DescriptorError{Path: path, Problems: []string{err.Error()}}
	}

	return &task, nil
}

// loadSchema compiles the embedded descriptor schema once.
func loadSchema() (*gojsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(descriptorSchema))
		if compiledSchemaErr != nil {
			compiledSchemaErr = fmt.Errorf("collection: compile descriptor schema: %w", compiledSchemaErr)
		}
	})
	return compiledSchema, compiledSchemaErr
}
