package a2a

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"agenthq/internal/domain"
)

// DefaultWellKnownPath is where agents publish their descriptor.
const DefaultWellKnownPath = "/.well-known/agent-card.json"

// cardSchema is the minimum shape a descriptor must have. Unknown fields are allowed.
const cardSchema = `{
  "type": "object",
  "required": ["name", "description", "url", "skills"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "url": {"type": "string"},
    "version": {"type": "string"},
    "capabilities": {"type": "object"},
    "defaultInputModes": {"type": "array", "items": {"type": "string"}},
    "defaultOutputModes": {"type": "array", "items": {"type": "string"}},
    "preferredTransport": {"type": "string"},
    "skills": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "examples": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	compiledOnce sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func descriptorSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiled, compileErr = jsonschema.NewCompiler().Compile([]byte(cardSchema))
	})
	return compiled, compileErr
}

// DecodeDescriptor validates raw against the descriptor schema and decodes it.
// Every failure wraps domain.ErrDescriptorInvalid.
func DecodeDescriptor(raw []byte) (domain.AgentDescriptor, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrDescriptorInvalid, err)
	}
	schema, err := descriptorSchema()
	if err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: schema: %v", domain.ErrDescriptorInvalid, err)
	}
	if result := schema.Validate(generic); !result.IsValid() {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: %s", domain.ErrDescriptorInvalid, result.Error())
	}

	var d domain.AgentDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrDescriptorInvalid, err)
	}
	return d, nil
}

// CardURL joins a base URL and the well-known path.
func CardURL(baseURL, wellKnownPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid agent url %q", domain.ErrInvalidInput, baseURL)
	}
	if wellKnownPath == "" {
		wellKnownPath = DefaultWellKnownPath
	}
	if !strings.HasPrefix(wellKnownPath, "/") {
		wellKnownPath = "/" + wellKnownPath
	}
	return strings.TrimRight(u.String(), "/") + wellKnownPath, nil
}
