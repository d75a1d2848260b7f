package core

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrMissingIcon  = errors.New("category icon is required")
	ErrInvalidColor = errors.New("category color must be a hex code like #FF8800")
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Category is a named category managed by its owner. Icon is a client icon
// name, Color a hex code.
type Category struct {
	ID    string
	Name  string
	Icon  string
	Color string
	Kind  Kind
}

func (c Category) Normalize() Category {
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	c.Color = strings.ToUpper(strings.TrimSpace(c.Color))
	c.Kind = c.Kind.Normalize()
	return c
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(c.Icon) == "" {
		return ErrMissingIcon
	}
	if !hexColor.MatchString(strings.TrimSpace(c.Color)) {
		return ErrInvalidColor
	}
	return c.Kind.Validate()
}
