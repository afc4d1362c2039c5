package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Descriptor describes a delegate. It is immutable once registered.
type Descriptor struct {
	ID          string        `yaml:"id" json:"id" validate:"required,max=64"`
	Name        string        `yaml:"name" json:"name" validate:"required,max=128"`
	Kind        Kind          `yaml:"kind" json:"kind" validate:"required"`
	Stage       project.Stage `yaml:"stage" json:"stage" validate:"min=1,max=6"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Prompt      string        `yaml:"prompt" json:"prompt" validate:"required"`
	Active      bool          `yaml:"active" json:"active"`
}

var validate = validator.New()

// Validate checks required fields and that Kind and Stage agree.
func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", e.Field(), e.Tag()))
		}
		return fmt.Errorf("delegate %q: %s", d.ID, strings.Join(msgs, "; "))
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("delegate %q: unknown kind %q", d.ID, d.Kind)
	}
	if d.Kind.Stage() != d.Stage {
		return fmt.Errorf("delegate %q: kind %s belongs to stage %d, not %d", d.ID, d.Kind, d.Kind.Stage(), d.Stage)
	}
	return nil
}
