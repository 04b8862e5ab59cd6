package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Loading error codes. The E0xx band covers loading mechanics; semantic
// validation codes live in the E1xx band (validate.go).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeSchema      = "E008" // Schema unification or constraint failure
	ErrCodeDecode      = "E009" // Decode into Policy failed
)

// LoadError is an error raised while loading a policy document.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads a policy from a CUE file or a directory of CUE files,
// unifies it with the embedded schema, applies defaults, and validates
// the result. All errors are collected; a non-empty error slice means
// the policy must not be used (configuration errors fail fast at setup).
func Load(path string) (Policy, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Policy{}, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy path not found: %s", path)}}
	}
	if err != nil {
		return Policy{}, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy path: %v", err)}}
	}

	ctx := cuecontext.New()
	def, defErr := schemaDefinition(ctx)
	if defErr != nil {
		return Policy{}, []error{defErr}
	}

	var cfg *load.Config
	var args []string
	if info.IsDir() {
		cfg = &load.Config{Dir: path}
		args = []string{"."}
	} else {
		cfg = &load.Config{Dir: filepath.Dir(path)}
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return Policy{}, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return Policy{}, cueErrorList(ErrCodeLoadFailed, inst.Err)
	}

	userVal := ctx.BuildInstance(inst)
	if err := userVal.Err(); err != nil {
		return Policy{}, cueErrorList(ErrCodeBuildFailed, err)
	}

	unified := def.Unify(userVal)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return Policy{}, cueErrorList(ErrCodeSchema, err)
	}

	var pol Policy
	if err := unified.Decode(&pol); err != nil {
		return Policy{}, []error{&LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("decoding policy: %v", err)}}
	}

	if verrs := Validate(pol); len(verrs) > 0 {
		out := make([]error, len(verrs))
		for i, ve := range verrs {
			out[i] = ve
		}
		return Policy{}, out
	}

	return pol, nil
}

// DefaultFromSchema evaluates the schema with no overrides, yielding the
// schema's own defaults. Used to verify the embedded schema and Default()
// agree.
func DefaultFromSchema() (Policy, error) {
	ctx := cuecontext.New()
	def, err := schemaDefinition(ctx)
	if err != nil {
		return Policy{}, err
	}

	if err := def.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return Policy{}, fmt.Errorf("schema defaults not concrete: %w", err)
	}

	var pol Policy
	if err := def.Decode(&pol); err != nil {
		return Policy{}, fmt.Errorf("decoding schema defaults: %w", err)
	}
	return pol, nil
}

func schemaDefinition(ctx *cue.Context) (cue.Value, *LoadError) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("compiling embedded schema: %v", err)}
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))
	if !def.Exists() {
		return cue.Value{}, &LoadError{Code: ErrCodeSchema, Message: "embedded schema missing #Policy definition"}
	}
	return def, nil
}

// cueErrorList converts a CUE error into one LoadError per underlying
// message, preserving source positions.
func cueErrorList(code string, err error) []error {
	var out []error
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, &LoadError{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Pos:     e.Position(),
		})
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}
