package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"
)

// Tool names exposed to the agents.
const (
	PersonaToolName      = "read_persona_information"
	AvailabilityToolName = "check_calendar_availability"
	BookingToolName      = "book_meeting_slot"
	WordCountToolName    = "count_words"
)

var (
	// ErrInvalidArguments 工具参数未通过 JSON Schema 校验。
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrUnknownTool 注册表中不存在该工具。
	ErrUnknownTool = errors.New("unknown tool")
)

// argument describes one string parameter of a tool.
type argument struct {
	name      string
	desc      string
	required  bool
	format    string
	minLength int
}

// descriptor 同时生成 eino 的 ToolInfo 与校验用的 JSON Schema。
type descriptor struct {
	name string
	desc string
	args []argument
}

func (d descriptor) info() *schema.ToolInfo {
	info := &schema.ToolInfo{Name: d.name, Desc: d.desc}
	if len(d.args) == 0 {
		return info
	}

	params := make(map[string]*schema.ParameterInfo, len(d.args))
	for _, arg := range d.args {
		params[arg.name] = &schema.ParameterInfo{
			Type:     schema.String,
			Desc:     arg.desc,
			Required: arg.required,
		}
	}
	info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	return info
}

func (d descriptor) jsonSchema() map[string]any {
	properties := make(map[string]any, len(d.args))
	required := make([]any, 0, len(d.args))
	for _, arg := range d.args {
		prop := map[string]any{"type": "string", "description": arg.desc}
		if arg.format != "" {
			prop["format"] = arg.format
		}
		if arg.minLength > 0 {
			prop["minLength"] = arg.minLength
		}
		properties[arg.name] = prop
		if arg.required {
			required = append(required, arg.name)
		}
	}

	out := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Description is a tool listing entry with its argument schema.
type Description struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type describer interface {
	describe() Description
}

func (d descriptor) describe() Description {
	return Description{Name: d.name, Description: d.desc, Parameters: d.jsonSchema()}
}

// decode validates argumentsInJSON against the descriptor and fills dst.
func (d descriptor) decode(argumentsInJSON string, dst any) error {
	raw := strings.TrimSpace(argumentsInJSON)
	if raw == "" {
		raw = "{}"
	}

	var document any
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, d.name, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(d.jsonSchema()), gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, d.name, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidArguments, d.name, strings.Join(problems, "; "))
	}

	if dst == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, d.name, err)
	}
	return nil
}
