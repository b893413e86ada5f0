package sparql

import (
	"fmt"
	"strings"
	"time"
)

const (
	xsdInteger  = "http://www.w3.org/2001/XMLSchema#integer"
	xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"
)

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeString renders a value as a quoted SPARQL string literal.
func EscapeString(value string) string {
	return `"` + stringEscaper.Replace(value) + `"`
}

// EscapeURI renders a URI as a SPARQL IRI ref. Characters that would break
// out of the ref are percent-encoded.
func EscapeURI(uri string) string {
	escaped := strings.NewReplacer(
		"<", "%3C",
		">", "%3E",
		`"`, "%22",
		" ", "%20",
		"{", "%7B",
		"}", "%7D",
		"|", "%7C",
		"^", "%5E",
		"`", "%60",
		`\`, "%5C",
	).Replace(uri)
	return "<" + escaped + ">"
}

// EscapeInt renders an integer as a typed literal.
func EscapeInt(value int64) string {
	return fmt.Sprintf(`"%d"^^<%s>`, value, xsdInteger)
}

// EscapeDateTime renders a timestamp as a typed xsd:dateTime literal.
func EscapeDateTime(value time.Time) string {
	return fmt.Sprintf(`"%s"^^<%s>`, value.UTC().Format(time.RFC3339), xsdDateTime)
}
