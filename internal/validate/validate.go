// Package validate holds the checks that run before any request leaves the client
// and the struct validation applied to API request bodies.
package validate

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Spok95/classtrack-portal/internal/apperr"
)

const (
	MaxFileSize = 10 * 1024 * 1024
	MinGrade    = 0
	MaxGrade    = 100
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

var (
	ErrEmptySubmission = apperr.Validation("empty submission")
	ErrGradeOutOfRange = apperr.Validation("grade out of range")
)

// Submission requires text content or a file, and checks the file when present.
func Submission(content, fileName string, fileSize int64) error {
	hasText := strings.TrimSpace(content) != ""
	hasFile := fileName != "" && fileSize > 0
	if !hasText && !hasFile {
		return ErrEmptySubmission
	}
	if fileName == "" {
		return nil
	}
	return File(fileName, fileSize)
}

func File(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return apperr.Validation("file type not allowed", apperr.FieldError{Field: "file", Error: "allowed types: .pdf .doc .docx .txt .jpg .jpeg .png .gif"})
	}
	if size > MaxFileSize {
		return apperr.Validation("file too large", apperr.FieldError{Field: "file", Error: "maximum size: 10MB"})
	}
	return nil
}

func GradeValue(v float64) error {
	if math.IsNaN(v) || v < MinGrade || v > MaxGrade {
		return ErrGradeOutOfRange
	}
	return nil
}

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		// JSON tag names in field errors instead of Go struct names.
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
	return instance
}

// Struct validates v by its `validate` tags and converts failures to apperr.Validation.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Error: describe(fe)})
	}
	return apperr.Validation("invalid request", fields...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must not exceed " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "alphanum":
		return "must contain only letters and digits"
	}
	return "invalid value"
}
