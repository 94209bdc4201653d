package extract

import "golang.org/x/net/html"

// ErrorFragment renders a boxed error block in place of a result region.
func ErrorFragment(msg string) string {
	return "<div style='color: red; padding: 20px; border: 1px solid red;'><h3>Error</h3><p>" +
		html.EscapeString(msg) + "</p></div>"
}

// InlineError renders a one-line error in place of an orders table.
func InlineError(msg string) string {
	return "<p style='color:red;'>" + html.EscapeString(msg) + "</p>"
}
