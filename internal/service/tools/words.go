package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

var wordCountDescriptor = descriptor{
	name: WordCountToolName,
	desc: "Count the words in a piece of text, for keeping pitches and summaries short.",
	args: []argument{
		{name: "text", desc: "Text to count.", required: true},
	},
}

// WordCountTool counts whitespace separated words.
type WordCountTool struct{}

var _ tool.InvokableTool = WordCountTool{}

func (WordCountTool) Info(context.Context) (*schema.ToolInfo, error) {
	return wordCountDescriptor.info(), nil
}

func (WordCountTool) describe() Description { return wordCountDescriptor.describe() }

func (WordCountTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := wordCountDescriptor.decode(argumentsInJSON, &args); err != nil {
		return "", err
	}
	return fmt.Sprintf("The text contains %d words.", len(strings.Fields(args.Text))), nil
}
