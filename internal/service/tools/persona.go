package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// PersonaUnavailable is returned in place of the persona text when the file is missing.
const PersonaUnavailable = "I don't have access to Enrique's persona information at the moment."

var personaDescriptor = descriptor{
	name: PersonaToolName,
	desc: "Read Enrique's complete persona information including his background, interests, " +
		"expertise, current projects, and communication style. Use this when users ask about " +
		"who Enrique is, what he does, his background, or his interests.",
}

// PersonaTool 读取 Enrique 的人设 markdown 文件。
type PersonaTool struct {
	path string
}

var _ tool.InvokableTool = (*PersonaTool)(nil)

// NewPersonaTool reads the persona from path on every call.
func NewPersonaTool(path string) *PersonaTool {
	return &PersonaTool{path: path}
}

func (t *PersonaTool) Info(context.Context) (*schema.ToolInfo, error) {
	return personaDescriptor.info(), nil
}

func (t *PersonaTool) describe() Description { return personaDescriptor.describe() }

func (t *PersonaTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	if err := personaDescriptor.decode(argumentsInJSON, nil); err != nil {
		return "", err
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PersonaUnavailable, nil
		}
		return fmt.Sprintf("Error reading Enrique's persona information: %v", err), nil
	}
	return string(data), nil
}
