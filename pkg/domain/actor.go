package domain

import (
	dErrors "callwatch/pkg/domain-errors"
)

// ProducedBy classifies who produced a decision.
// Invariant: human-produced decisions always carry a non-nil UserID; model
// decisions always carry a model name. Construct via the Actor constructors
// to keep the pairing valid.
type ProducedBy string

const (
	ProducedBySystem ProducedBy = "system"
	ProducedByHuman  ProducedBy = "human"
	ProducedByModel  ProducedBy = "model"
)

// Actor is a closed sum over the three decision producers.
type Actor struct {
	Kind   ProducedBy
	UserID UserID // set when Kind == ProducedByHuman
	Model  string // set when Kind == ProducedByModel
}

// SystemActor is the engine itself.
func SystemActor() Actor {
	return Actor{Kind: ProducedBySystem}
}

// HumanActor returns the actor for a human override.
func HumanActor(userID UserID) (Actor, error) {
	if userID.IsNil() {
		return Actor{}, dErrors.New(dErrors.CodeInvalidInput, "human actor requires a user id")
	}
	return Actor{Kind: ProducedByHuman, UserID: userID}, nil
}

// ModelActor returns the actor for a model-produced decision.
func ModelActor(model string) (Actor, error) {
	if model == "" {
		return Actor{}, dErrors.New(dErrors.CodeInvalidInput, "model actor requires a model name")
	}
	return Actor{Kind: ProducedByModel, Model: model}, nil
}

// Validate checks the kind/field pairing invariant.
func (a Actor) Validate() error {
	switch a.Kind {
	case ProducedBySystem:
		return nil
	case ProducedByHuman:
		if a.UserID.IsNil() {
			return dErrors.New(dErrors.CodeInvalidInput, "human actor requires a user id")
		}
		return nil
	case ProducedByModel:
		if a.Model == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "model actor requires a model name")
		}
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown producer kind")
	}
}

func (a Actor) String() string {
	switch a.Kind {
	case ProducedByHuman:
		return "human:" + a.UserID.String()
	case ProducedByModel:
		return "model:" + a.Model
	default:
		return string(ProducedBySystem)
	}
}
