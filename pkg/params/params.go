// Package params decodes and validates optimization request parameters
// before anything is sent upstream.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Upload limits.
const (
	MaxUploadBytes = 50 << 20
)

// AllowedExtensions are the accepted geometry upload formats.
var AllowedExtensions = []string{".3dm", ".stl", ".obj"}

// Supported algorithms for topology optimization requests.
var Algorithms = []string{
	"standard", "beso", "levelset", "multiobjective",
	"adaptivemesh", "stressbased", "frequencybased", "sensitivity",
}

// TopOptParams are the topology optimization parameters sent in the
// multipart "params" field.
type TopOptParams struct {
	VolumeFraction float64 `json:"volumeFraction" validate:"gte=0.1,lte=0.9"`
	Penalty        float64 `json:"penalty" validate:"gte=1,lte=10"`
	Iterations     int     `json:"iterations" validate:"gte=10,lte=200"`
	LoadMagnitude  float64 `json:"loadMagnitude" validate:"gte=100,lte=10000"`
	SupportType    string  `json:"supportType" validate:"oneof=fixed pinned roller"`
	Algorithm      string  `json:"algorithm" validate:"oneof=standard beso levelset multiobjective adaptivemesh stressbased frequencybased sensitivity"`

	// Advanced parameters, only meaningful for some algorithms
	EvolutionRate       *float64 `json:"evolutionRate,omitempty" validate:"omitempty,gt=0,lte=1"`
	RejectionRatio      *float64 `json:"rejectionRatio,omitempty" validate:"omitempty,gt=0,lte=1"`
	TimeStep            *float64 `json:"timeStep,omitempty" validate:"omitempty,gt=0,lte=10"`
	Objectives          []string `json:"objectives,omitempty" validate:"omitempty,dive,oneof=compliance stress frequency volume"`
	RefinementThreshold *float64 `json:"refinementThreshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	StressThreshold     *float64 `json:"stressThreshold,omitempty" validate:"omitempty,gt=0"`
	TargetFrequency     *float64 `json:"targetFrequency,omitempty" validate:"omitempty,gt=0"`
}

// DefaultTopOptParams returns the parameters used for absent fields.
func DefaultTopOptParams() TopOptParams {
	return TopOptParams{
		VolumeFraction: 0.5,
		Penalty:        3.0,
		Iterations:     50,
		LoadMagnitude:  1000,
		SupportType:    "fixed",
		Algorithm:      "standard",
	}
}

// Map returns the parameters as a JSON object map for the upstream payload.
func (p TopOptParams) Map() map[string]any {
	raw, _ := json.Marshal(p)
	out := make(map[string]any)
	_ = json.Unmarshal(raw, &out)
	return out
}

// HopsParams are the parameters of a Grasshopper (Hops) request.
type HopsParams struct {
	Definition string         `json:"definition" validate:"required"`
	Inputs     map[string]any `json:"inputs"`
}

// ValidationError is a rejected request parameter.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors collects every rejected parameter of one request.
type ValidationErrors []*ValidationError

// Error joins the messages.
func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool {
	var one *ValidationError
	var many ValidationErrors
	return errors.As(err, &one) || errors.As(err, &many)
}

// Invalid returns a single-field ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so messages match what clients sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldMessages are the user-facing messages per field.
var fieldMessages = map[string]string{
	"volumeFraction":      "Volume fraction must be between 0.1 and 0.9",
	"penalty":             "Penalty factor must be between 1.0 and 10.0",
	"iterations":          "Iterations must be between 10 and 200",
	"loadMagnitude":       "Load magnitude must be between 100 and 10000",
	"supportType":         "Support type must be one of: fixed, pinned, roller",
	"algorithm":           "Algorithm must be one of: " + strings.Join(Algorithms, ", "),
	"evolutionRate":       "Evolution rate must be greater than 0 and at most 1",
	"rejectionRatio":      "Rejection ratio must be greater than 0 and at most 1",
	"timeStep":            "Time step must be greater than 0 and at most 10",
	"objectives":          "Objectives must be drawn from: compliance, stress, frequency, volume",
	"refinementThreshold": "Refinement threshold must be greater than 0 and at most 1",
	"stressThreshold":     "Stress threshold must be greater than 0",
	"targetFrequency":     "Target frequency must be greater than 0",
	"definition":          "Missing required parameter: definition",
}

// Struct validates s and converts failures into ValidationErrors.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		// Dive errors report "objectives[1]"; collapse them onto the field.
		field := strings.SplitN(fe.Field(), "[", 2)[0]
		if seen[field] {
			continue
		}
		seen[field] = true

		msg, ok := fieldMessages[field]
		if !ok {
			msg = fmt.Sprintf("Invalid value for %s", field)
		}
		out = append(out, &ValidationError{Field: field, Message: msg})
	}
	return out
}

// Parse decodes the raw JSON params field over the defaults and validates
// the result. An empty string yields the defaults.
func Parse(raw string) (TopOptParams, error) {
	p := DefaultTopOptParams()
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return TopOptParams{}, Invalid("params", "Invalid parameters JSON: %v", err)
		}
	}
	p.Algorithm = strings.ToLower(p.Algorithm)
	p.SupportType = strings.ToLower(p.SupportType)

	if err := Struct(p); err != nil {
		return TopOptParams{}, err
	}
	return p, nil
}

// ParseHops decodes and validates a Hops params field.
func ParseHops(raw string) (HopsParams, error) {
	var p HopsParams
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return HopsParams{}, Invalid("params", "Invalid parameters JSON: %v", err)
		}
	}
	if err := Struct(p); err != nil {
		return HopsParams{}, err
	}
	return p, nil
}

// ValidateUpload checks an uploaded file's extension and size.
func ValidateUpload(name string, size int64) error {
	if size > MaxUploadBytes {
		return Invalid("file", "File size (%.2fMB) exceeds maximum limit of 50MB", float64(size)/1024/1024)
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return Invalid("file", "Unsupported file type: %s. Allowed: %s", ext, strings.Join(AllowedExtensions, ", "))
}
