package extract

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// markdownConverter is goroutine-safe and reused across calls. The table
// plugin matters here: case status and orders are both tables.
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(
			table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
		),
	),
)

// ToMarkdown converts a result or orders fragment to Markdown, resolving
// relative links against origin.
func ToMarkdown(htmlContent, origin string) (string, error) {
	return markdownConverter.ConvertString(htmlContent, converter.WithDomain(origin))
}
