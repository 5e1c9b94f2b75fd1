package asyncapi

import (
	"errors"
	"fmt"
	"maps"
	"regexp"

	"github.com/drblury/contractflow/internal/runtime/app"
	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
	"github.com/drblury/contractflow/internal/runtime/schema"
)

// DefaultContentType is advertised as the document default.
const DefaultContentType = "application/json"

var componentKey = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Build describes every contract of application. It fails when two contracts
// of the same kind claim the same raw template.
func Build(application *app.Application) (*Document, error) {
	if application == nil {
		return nil, errspkg.ErrApplicationRequired
	}
	info := application.Info()
	doc := &Document{
		AsyncAPI:           Version,
		ID:                 info.ID,
		Info:               buildInfo(info),
		DefaultContentType: DefaultContentType,
		Channels:           map[string]Channel{},
		Components: Components{
			Messages: map[string]Message{},
			Schemas:  map[string]map[string]any{},
		},
		Tags:         convertTags(info.Tags),
		ExternalDocs: convertDocs(info.ExternalDocs),
	}

	var errs []error
	for _, c := range application.Components() {
		if err := doc.add(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return doc, nil
}

func buildInfo(info app.Info) Info {
	title := info.Title
	if title == "" {
		title = info.Name
	}
	out := Info{
		Title:          title,
		Version:        info.Version,
		Description:    info.Description,
		TermsOfService: info.TermsOfService,
	}
	if len(info.Metadata) > 0 {
		out.Metadata = maps.Clone(info.Metadata)
	}
	if info.Contact != nil {
		out.Contact = &Contact{Name: info.Contact.Name, URL: info.Contact.URL, Email: info.Contact.Email}
	}
	if info.License != nil {
		out.License = &License{Name: info.License.Name, URL: info.License.URL}
	}
	return out
}

func convertDocs(docs *app.ExternalDocs) *ExternalDocs {
	if docs == nil {
		return nil
	}
	return &ExternalDocs{Description: docs.Description, URL: docs.URL}
}

func convertTags(tags []app.Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, Tag{Name: t.Name, Description: t.Description, ExternalDocs: convertDocs(t.ExternalDocs)})
	}
	return out
}

func (d *Document) add(c contract.Descriptor) error {
	key := c.Address().String()
	ch := d.Channels[key]
	if ch.Parameters == nil && c.Address().HasParams() {
		ch.Parameters = parameters(c)
	}

	op := &Operation{
		OperationID: c.Name(),
		Summary:     c.Summary(),
		Description: c.Description(),
		StatusCode:  c.StatusCode(),
	}
	for _, name := range c.Tags() {
		op.Tags = append(op.Tags, Tag{Name: name})
	}
	if md := c.Metadata(); len(md) > 0 {
		op.Metadata = md
	}

	for _, role := range c.Schemas() {
		ref := d.addMessage(c.Name(), role)
		switch role.Role {
		case contract.RolePayload:
			op.Message = ref
		case contract.RoleReply:
			op.Reply = &ref
		}
	}
	if c.Kind() == contract.KindOperation {
		op.Errors = d.errorResponses(c)
	}

	existing := ch.Subscribe
	if c.Kind() == contract.KindEvent {
		existing = ch.Publish
	}
	if existing != nil {
		return &errspkg.DuplicateSubjectError{First: existing.OperationID, Second: c.Name(), Subject: key}
	}
	if c.Kind() == contract.KindEvent {
		ch.Publish = op
	} else {
		ch.Subscribe = op
	}
	d.Channels[key] = ch
	return nil
}

func (d *Document) errorResponses(c contract.Descriptor) []ErrorResponse {
	var errRef *Ref
	for _, role := range c.Schemas() {
		if role.Role == contract.RoleError {
			ref := Ref{Ref: "#/components/messages/" + messageKey(c.Name(), role.Role)}
			errRef = &ref
		}
	}
	mappings := c.Mappings()
	if len(mappings) == 0 {
		return nil
	}
	out := make([]ErrorResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, ErrorResponse{Code: m.Code, Description: m.Description, Message: errRef})
	}
	return out
}

func (d *Document) addMessage(contractName string, role contract.SchemaRole) Ref {
	key := messageKey(contractName, role.Role)
	msg := Message{
		Name:        key,
		Title:       fmt.Sprintf("%s %s", contractName, role.Role),
		ContentType: role.Entry.ContentType(),
	}
	if doc := role.Entry.JSONSchema(); doc != nil && !role.Entry.IsUnit() {
		d.Components.Schemas[key] = maps.Clone(doc)
		msg.Payload = &Ref{Ref: "#/components/schemas/" + key}
	}
	d.Components.Messages[key] = msg
	return Ref{Ref: "#/components/messages/" + key}
}

func messageKey(contractName, role string) string {
	return componentKey.ReplaceAllString(contractName, "_") + "." + role
}

func parameters(c contract.Descriptor) map[string]Parameter {
	params := make(map[string]Parameter)
	for _, p := range c.Params() {
		param := Parameter{Schema: map[string]any{"type": "string"}}
		if p.Field != "" {
			param.Description = fmt.Sprintf("Bound to field %s", p.Field)
		}
		if p.Type != nil {
			if s := schema.TypeSchema(p.Type); s["type"] == "integer" || s["type"] == "number" || s["type"] == "boolean" {
				param.Schema["pattern"] = paramPattern(s["type"].(string))
			}
		}
		params[p.Name] = param
	}
	return params
}

func paramPattern(jsonType string) string {
	switch jsonType {
	case "integer":
		return `^-?[0-9]+$`
	case "boolean":
		return `^(true|false)$`
	}
	return `^-?[0-9]+(\.[0-9]+)?([eE][-+]?[0-9]+)?$`
}
