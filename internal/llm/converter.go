package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	legalToPlainPrompt = `You rewrite legal documents in plain English for non-lawyers.
Keep every obligation, right, deadline, amount and party. Do not add advice.
Use short sentences and everyday words. Keep the original section order.
Answer with JSON: {"text": "<the rewritten document>"}.`

	plainToLegalPrompt = `You rewrite plain-language agreements as formal legal text.
Keep the meaning exact and do not invent obligations, parties or amounts.
Use defined terms, numbered clauses and conventional contract drafting.
Answer with JSON: {"text": "<the rewritten document>"}.`

	keyTermsPrompt = `You extract the key legal terms from a document.
For each term give a one-sentence plain-English explanation and how important it is for the reader (high, medium or low).
Return at most 15 terms.`

	summaryPrompt = `You summarize legal documents for non-lawyers in at most five sentences.
Lead with what the reader must do or pay, then their rights, then the risks.`
)

type convertedText struct {
	Text string `json:"text" jsonschema:"description=The rewritten document"`
}

// KeyTerm is one extracted legal term with its plain-language explanation.
type KeyTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
	Importance  string `json:"importance" jsonschema:"enum=high,enum=medium,enum=low"`
}

type keyTermsResult struct {
	Terms []KeyTerm `json:"terms"`
}

type summaryResult struct {
	Summary string `json:"summary"`
}

// Converter is the language-model surface the conversion endpoint needs.
type Converter interface {
	LegalToPlain(ctx context.Context, text string) (string, error)
	PlainToLegal(ctx context.Context, text string) (string, error)
	ExtractKeyTerms(ctx context.Context, text string) ([]KeyTerm, error)
	Summarize(ctx context.Context, text string) (string, error)
}

func (c *Client) LegalToPlain(ctx context.Context, text string) (string, error) {
	return c.rewrite(ctx, "legal_to_plain", legalToPlainPrompt, text)
}

func (c *Client) PlainToLegal(ctx context.Context, text string) (string, error) {
	return c.rewrite(ctx, "plain_to_legal", plainToLegalPrompt, text)
}

func (c *Client) rewrite(ctx context.Context, schemaName, systemPrompt, text string) (string, error) {
	var out convertedText
	_, err := c.Chat(ctx, Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   text,
		SchemaName:   schemaName,
		Schema:       GenerateSchema[convertedText](),
		MaxTokens:    maxTokensFor(text),
		Temperature:  Temp(0.2),
	}, &out)
	if err != nil {
		return "", err
	}
	converted := strings.TrimSpace(out.Text)
	if converted == "" {
		return "", fmt.Errorf("%w: empty conversion", ErrProvider)
	}
	return converted, nil
}

func (c *Client) ExtractKeyTerms(ctx context.Context, text string) ([]KeyTerm, error) {
	var out keyTermsResult
	_, err := c.Chat(ctx, Request{
		SystemPrompt: keyTermsPrompt,
		UserPrompt:   text,
		SchemaName:   "key_terms",
		Schema:       GenerateSchema[keyTermsResult](),
		MaxTokens:    1500,
		Temperature:  Temp(0),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Terms == nil {
		out.Terms = []KeyTerm{}
	}
	return out.Terms, nil
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var out summaryResult
	_, err := c.Chat(ctx, Request{
		SystemPrompt: summaryPrompt,
		UserPrompt:   text,
		SchemaName:   "summary",
		Schema:       GenerateSchema[summaryResult](),
		MaxTokens:    600,
		Temperature:  Temp(0.2),
	}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

// maxTokensFor leaves room for a rewrite somewhat longer than the input,
// at roughly three characters per token.
func maxTokensFor(text string) int {
	tokens := len(text)/3 + 256
	if tokens > 16000 {
		tokens = 16000
	}
	return tokens
}
