package models

import (
	"errors"
	"fmt"
)

var (
	ErrTrainableWithoutParent = errors.New("a trainable theme must belong to a category")
	ErrTooDeep                = errors.New("only one level of hierarchy is allowed (category -> theme)")
	ErrParentTrainable        = errors.New("a theme's parent must be a non-trainable category")
	ErrTagMismatch            = errors.New("external tag must be set exactly for trainable themes")
)

// Validate checks the category -> theme hierarchy. parent is the resolved parent or nil.
func (t Theme) Validate(parent *Theme) error {
	if t.Name == "" {
		return fmt.Errorf("theme name is required")
	}
	if t.Trainable && parent == nil {
		return ErrTrainableWithoutParent
	}
	if parent != nil {
		if parent.ParentID != nil {
			return ErrTooDeep
		}
		if parent.Trainable {
			return ErrParentTrainable
		}
	}
	if t.Trainable != (t.Tag() != "") {
		return ErrTagMismatch
	}
	return nil
}
