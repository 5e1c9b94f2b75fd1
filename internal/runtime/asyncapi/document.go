// Package asyncapi renders an application registry as an AsyncAPI 2.6.0
// document.
package asyncapi

import (
	"gopkg.in/yaml.v3"

	"github.com/drblury/contractflow/internal/runtime/jsoncodec"
)

// Version is the AsyncAPI specification version emitted by Build.
const Version = "2.6.0"

// Document is the root AsyncAPI object.
type Document struct {
	AsyncAPI           string             `json:"asyncapi" yaml:"asyncapi"`
	ID                 string             `json:"id,omitempty" yaml:"id,omitempty"`
	Info               Info               `json:"info" yaml:"info"`
	DefaultContentType string             `json:"defaultContentType,omitempty" yaml:"defaultContentType,omitempty"`
	Channels           map[string]Channel `json:"channels" yaml:"channels"`
	Components         Components         `json:"components" yaml:"components"`
	Tags               []Tag              `json:"tags,omitempty" yaml:"tags,omitempty"`
	ExternalDocs       *ExternalDocs      `json:"externalDocs,omitempty" yaml:"externalDocs,omitempty"`
}

type Info struct {
	Title          string            `json:"title" yaml:"title"`
	Version        string            `json:"version" yaml:"version"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	TermsOfService string            `json:"termsOfService,omitempty" yaml:"termsOfService,omitempty"`
	Contact        *Contact          `json:"contact,omitempty" yaml:"contact,omitempty"`
	License        *License          `json:"license,omitempty" yaml:"license,omitempty"`
	Metadata       map[string]string `json:"x-metadata,omitempty" yaml:"x-metadata,omitempty"`
}

type Contact struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

type License struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

type ExternalDocs struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string `json:"url" yaml:"url"`
}

type Tag struct {
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	ExternalDocs *ExternalDocs `json:"externalDocs,omitempty" yaml:"externalDocs,omitempty"`
}

// Channel is keyed in Document.Channels by its raw subject template.
// Subscribe describes requests the application receives, Publish the events
// it emits.
type Channel struct {
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Subscribe   *Operation           `json:"subscribe,omitempty" yaml:"subscribe,omitempty"`
	Publish     *Operation           `json:"publish,omitempty" yaml:"publish,omitempty"`
}

type Parameter struct {
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      map[string]any `json:"schema" yaml:"schema"`
}

type Operation struct {
	OperationID string            `json:"operationId" yaml:"operationId"`
	Summary     string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []Tag             `json:"tags,omitempty" yaml:"tags,omitempty"`
	Message     Ref               `json:"message" yaml:"message"`
	Reply       *Ref              `json:"x-reply,omitempty" yaml:"x-reply,omitempty"`
	StatusCode  int               `json:"x-status-code,omitempty" yaml:"x-status-code,omitempty"`
	Errors      []ErrorResponse   `json:"x-errors,omitempty" yaml:"x-errors,omitempty"`
	Metadata    map[string]string `json:"x-metadata,omitempty" yaml:"x-metadata,omitempty"`
}

// ErrorResponse documents one exception mapping of an operation.
type ErrorResponse struct {
	Code        int    `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
	Message     *Ref   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Ref is a JSON reference into the components section.
type Ref struct {
	Ref string `json:"$ref" yaml:"$ref"`
}

type Message struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Payload     *Ref   `json:"payload,omitempty" yaml:"payload,omitempty"`
}

type Components struct {
	Messages map[string]Message        `json:"messages,omitempty" yaml:"messages,omitempty"`
	Schemas  map[string]map[string]any `json:"schemas,omitempty" yaml:"schemas,omitempty"`
}

// JSON renders the document with indentation.
func (d *Document) JSON() ([]byte, error) {
	return jsoncodec.MarshalIndent(d, "", "  ")
}

// YAML renders the document as YAML.
func (d *Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}
