// Package app groups contracts into an immutable application registry.
package app

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

// Contact is the documentation contact of an application.
type Contact struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// License is the documentation license of an application.
type License struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// ExternalDocs points at documentation hosted elsewhere.
type ExternalDocs struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url" yaml:"url"`
}

// Tag groups contracts in the generated documentation.
type Tag struct {
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	ExternalDocs *ExternalDocs `json:"externalDocs,omitempty" yaml:"externalDocs,omitempty"`
}

// Info describes an application.
type Info struct {
	ID             string
	Name           string
	Version        string
	Title          string
	Description    string
	TermsOfService string
	Contact        *Contact
	License        *License
	Tags           []Tag
	ExternalDocs   *ExternalDocs
	Metadata       map[string]string
}

// Application is a fixed set of contracts. It is safe for concurrent use.
type Application struct {
	info       Info
	components []contract.Descriptor
	byName     map[string]contract.Descriptor
}

// New validates info and components and builds the registry.
func New(info Info, components ...contract.Descriptor) (*Application, error) {
	if info.Name == "" {
		return nil, errors.New("contractflow: application name is required")
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	if _, err := semver.StrictNewVersion(info.Version); err != nil {
		return nil, fmt.Errorf("contractflow: application %q has invalid version %q: %w", info.Name, info.Version, err)
	}
	info.Metadata = maps.Clone(info.Metadata)
	info.Tags = slices.Clone(info.Tags)

	a := &Application{
		info:       info,
		components: make([]contract.Descriptor, 0, len(components)),
		byName:     make(map[string]contract.Descriptor, len(components)),
	}
	for i, c := range components {
		if c == nil {
			return nil, fmt.Errorf("%w: component %d of %q is nil", errspkg.ErrComponentRequired, i, info.Name)
		}
		if slices.Contains(a.components, c) {
			return nil, &errspkg.DuplicateComponentError{Name: c.Name()}
		}
		if _, dup := a.byName[c.Name()]; dup {
			return nil, &errspkg.DuplicateComponentError{Name: c.Name()}
		}
		a.components = append(a.components, c)
		a.byName[c.Name()] = c
	}
	return a, nil
}

// MustNew is like New but panics on error.
func MustNew(info Info, components ...contract.Descriptor) *Application {
	a, err := New(info, components...)
	if err != nil {
		panic(err)
	}
	return a
}

// Info returns a copy of the application info.
func (a *Application) Info() Info {
	info := a.info
	info.Metadata = maps.Clone(a.info.Metadata)
	info.Tags = slices.Clone(a.info.Tags)
	return info
}

func (a *Application) Name() string { return a.info.Name }

func (a *Application) Version() string { return a.info.Version }

// Components returns all contracts in declaration order.
func (a *Application) Components() []contract.Descriptor {
	return slices.Clone(a.components)
}

// Operations returns the request/reply contracts in declaration order.
func (a *Application) Operations() []contract.Descriptor {
	return a.ofKind(contract.KindOperation)
}

// Events returns the event contracts in declaration order.
func (a *Application) Events() []contract.Descriptor {
	return a.ofKind(contract.KindEvent)
}

func (a *Application) ofKind(kind contract.Kind) []contract.Descriptor {
	var out []contract.Descriptor
	for _, c := range a.components {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether the exact contract value is registered.
func (a *Application) Has(c contract.Descriptor) bool {
	if c == nil {
		return false
	}
	return a.byName[c.Name()] == c
}

// Lookup finds a contract by name.
func (a *Application) Lookup(name string) (contract.Descriptor, bool) {
	c, ok := a.byName[name]
	return c, ok
}

// MatchOperation resolves a concrete subject to the operation whose address
// parses it.
func (a *Application) MatchOperation(subject string) (contract.Descriptor, error) {
	return a.match(contract.KindOperation, subject)
}

// MatchEvent resolves a concrete subject to the event whose address parses it.
func (a *Application) MatchEvent(subject string) (contract.Descriptor, error) {
	return a.match(contract.KindEvent, subject)
}

func (a *Application) match(kind contract.Kind, subject string) (contract.Descriptor, error) {
	for _, c := range a.components {
		if c.Kind() == kind && c.Address().Matches(subject) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", errspkg.ErrUnknownSubject, kind, subject)
}

// ValidateSubjects reports every pair of contracts of the same kind whose
// addresses could match the same concrete subject or share a subscription
// pattern.
func (a *Application) ValidateSubjects() error {
	var errs []error
	for _, kind := range []contract.Kind{contract.KindOperation, contract.KindEvent} {
		errs = append(errs, CheckCollisions(a.ofKind(kind))...)
	}
	return errors.Join(errs...)
}

// CheckCollisions compares contract addresses pairwise.
func CheckCollisions(components []contract.Descriptor) []error {
	var errs []error
	for i := 0; i < len(components); i++ {
		for j := i + 1; j < len(components); j++ {
			first, second := components[i], components[j]
			if first.Address().Collides(second.Address()) {
				errs = append(errs, &errspkg.DuplicateSubjectError{
					First:   first.Name(),
					Second:  second.Name(),
					Subject: second.Address().String(),
				})
			}
		}
	}
	return errs
}
