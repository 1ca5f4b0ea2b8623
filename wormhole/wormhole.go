// Package wormhole loads routing declarations ("wormholes") that seed the
// topology: which event class is handled by which agent action.
package wormhole

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/najoast/physarum/topology"
)

// ErrInvalidWormhole is wrapped by every validation failure.
var ErrInvalidWormhole = errors.New("invalid wormhole")

var validate = validator.New()

// From is the event class a wormhole listens to.
type From struct {
	SourceType string `yaml:"sourceType" json:"sourceType" validate:"required,max=128"`
	EventType  string `yaml:"eventType" json:"eventType" validate:"required,max=128"`
}

// To is the agent action a wormhole delivers to.
type To struct {
	TargetAgentRole string `yaml:"targetAgentRole" json:"targetAgentRole" validate:"required,max=128"`
	ActionType      string `yaml:"actionType" json:"actionType" validate:"required,max=128"`
}

// Wormhole is one routing declaration.
type Wormhole struct {
	ID      string `yaml:"id" json:"id" validate:"required,max=128"`
	From    From   `yaml:"from" json:"from"`
	To      To     `yaml:"to" json:"to"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// Declaration converts w into the form the topology consumes.
func (w Wormhole) Declaration() topology.Declaration {
	return topology.Declaration{
		From: topology.Source{SourceType: w.From.SourceType, EventType: w.From.EventType},
		To:   topology.Target{TargetAgentRole: w.To.TargetAgentRole, ActionType: w.To.ActionType},
	}
}

// Validate checks a single wormhole.
func (w Wormhole) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w %q: %s", ErrInvalidWormhole, w.ID, formatValidationError(err))
	}
	return nil
}

// Store is a source of routing declarations.
type Store interface {
	List(ctx context.Context) ([]Wormhole, error)
}

// Resolve validates list and returns the declarations of the valid, enabled
// entries in list order. Invalid entries and duplicate ids are skipped and
// reported together in the returned error, so one bad entry does not block
// the rest.
func Resolve(list []Wormhole) ([]topology.Declaration, error) {
	decls := make([]topology.Declaration, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	var problems []string

	for i, w := range list {
		if err := w.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		if _, dup := seen[w.ID]; dup {
			problems = append(problems, fmt.Sprintf("entry %d: duplicate id %q", i, w.ID))
			continue
		}
		seen[w.ID] = struct{}{}

		if w.Enabled {
			decls = append(decls, w.Declaration())
		}
	}

	if len(problems) > 0 {
		return decls, fmt.Errorf("%w: %s", ErrInvalidWormhole, strings.Join(problems, "; "))
	}
	return decls, nil
}

// Load lists store and resolves the result. A non-nil error with non-empty
// declarations means some entries were skipped.
func Load(ctx context.Context, store Store) ([]topology.Declaration, error) {
	list, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	return Resolve(list)
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
