package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/adscope/internal/browser/scripts"
)

// Strategy names, in the order they are tried.
const (
	StrategyStructured = "structured"
	StrategyMainText   = "main-text"
	StrategyStripped   = "stripped"
	StrategyIframe     = "iframe"
	StrategyMinimal    = "minimal"
)

// Evaluator runs page scripts. *session.Session satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out interface{}) error
}

// Strategy pulls page text one way. Every strategy has the same shape so the
// fallback chain is just a slice.
type Strategy struct {
	Name    string
	Extract func(ctx context.Context, ev Evaluator) (string, error)
}

// DefaultStrategies returns the five strategies from most to least
// structural.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyStructured, Extract: structured},
		{Name: StrategyMainText, Extract: MainText},
		{Name: StrategyStripped, Extract: stripped},
		{Name: StrategyIframe, Extract: scriptText(scripts.IframeText)},
		{Name: StrategyMinimal, Extract: scriptText(scripts.TextNodes)},
	}
}

func evalString(ctx context.Context, ev Evaluator, unit string) (string, error) {
	expr, err := scripts.Call(unit)
	if err != nil {
		return "", err
	}
	var out string
	if err := ev.Evaluate(ctx, expr, &out); err != nil {
		return "", fmt.Errorf("extract: %s: %w", unit, err)
	}
	return out, nil
}

func scriptText(unit string) func(context.Context, Evaluator) (string, error) {
	return func(ctx context.Context, ev Evaluator) (string, error) {
		text, err := evalString(ctx, ev, unit)
		return strings.TrimSpace(text), err
	}
}

// MainText returns the innerText of the main content container. It doubles
// as the progressive snapshot taken at every heatmap level.
func MainText(ctx context.Context, ev Evaluator) (string, error) {
	return scriptText(scripts.MainText)(ctx, ev)
}

func structured(ctx context.Context, ev Evaluator) (string, error) {
	raw, err := evalString(ctx, ev, scripts.StructuredHTML)
	if err != nil {
		return "", err
	}
	return toMarkdown(raw)
}

var (
	sanitizer = bluemonday.UGCPolicy()
	mdConv    = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// toMarkdown sanitizes page HTML and converts what is left to Markdown.
func toMarkdown(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	md, err := mdConv.ConvertString(sanitizer.Sanitize(raw))
	if err != nil {
		return "", fmt.Errorf("extract: markdown conversion: %w", err)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(md, "\n\n")), nil
}

func stripped(ctx context.Context, ev Evaluator) (string, error) {
	raw, err := evalString(ctx, ev, scripts.OuterHTML)
	if err != nil {
		return "", err
	}
	return stripTags(raw), nil
}

// blockElements end a line of text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Article: true, atom.Section: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// skippedElements never contribute text.
var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Head: true, atom.Svg: true, atom.Iframe: true,
}

// stripTags drops markup, keeps text outside script-like elements and
// collapses whitespace, one line per block.
func stripTags(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var (
		lines []string
		line  strings.Builder
		skip  int
	)
	flush := func() {
		if s := strings.Join(strings.Fields(line.String()), " "); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way keep what was read.
			flush()
			return strings.Join(lines, "\n")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && tt == html.StartTagToken {
				skip++
			}
			if blockElements[a] {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skippedElements[a] && skip > 0 {
				skip--
			}
			if blockElements[a] {
				flush()
			}
		case html.TextToken:
			if skip == 0 {
				line.Write(z.Text())
				line.WriteByte(' ')
			}
		}
	}
}
