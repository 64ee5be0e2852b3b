package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// KnowledgeRetriever returns the text of the k chunks closest to query.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// RetrieveKnowledgeTool searches the knowledge base.
type RetrieveKnowledgeTool struct {
	retriever KnowledgeRetriever
	topK      int
}

// NewRetrieveKnowledgeTool returns the tool; topK <= 0 means 5.
func NewRetrieveKnowledgeTool(r KnowledgeRetriever, topK int) *RetrieveKnowledgeTool {
	if topK <= 0 {
		topK = 5
	}
	return &RetrieveKnowledgeTool{retriever: r, topK: topK}
}

type retrieveArgs struct {
	Query string `json:"query"`
}

func (t *RetrieveKnowledgeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "retrieve_knowledge",
		Description: fmt.Sprintf(`Search the knowledge base for documents relevant to a query.

Returns up to %d documents, most relevant first, each wrapped in
<document> tags. Phrase the query the way the answer would be written.`, t.topK),
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "What to search for", Required: true},
		},
	}
}

func (t *RetrieveKnowledgeTool) Validate(args json.RawMessage) error {
	var a retrieveArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	return requireString("query", a.Query)
}

func (t *RetrieveKnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a retrieveArgs
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}
	docs, err := t.retriever.Retrieve(ctx, a.Query, t.topK)
	if err != nil {
		return FailureResult(err), nil
	}
	if len(docs) == 0 {
		return SuccessResult("(knowledge base is empty)"), nil
	}
	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "===== %d =====\n%s\n", i+1, d)
	}
	return SuccessResult(strings.TrimRight(b.String(), "\n")), nil
}
