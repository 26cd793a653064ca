package receipt

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// enye is replaced explicitly: decomposition alone cannot be trusted to strip
// the tilde off n on every input source.
var enye = strings.NewReplacer("ñ", "n", "Ñ", "N")

var bracketed = regexp.MustCompile(`\[.*?\]`)

// Normalize strips combining diacritical marks via Unicode decomposition and
// maps ñ/Ñ to n/N. Every human-readable string headed for the printer goes
// through here because the printer code page cannot render extended Latin
// characters reliably.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = enye.Replace(text)
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(stripper, text)
	if err != nil {
		return text
	}
	return out
}

// CleanProductName keeps only the first line of a product name, removes every
// bracketed internal code, normalizes diacritics and trims whitespace.
// Upstream names embed SKU codes in brackets and attribute lines after a
// newline.
func CleanProductName(name string) string {
	if name == "" {
		return ""
	}
	first, _, _ := strings.Cut(name, "\n")
	first = bracketed.ReplaceAllString(first, "")
	return strings.TrimSpace(Normalize(first))
}

// ComprobanteLabel maps the 3-character NCF type tag to its document label.
// Unknown or missing tags fall back to the generic form.
func ComprobanteLabel(ncf string) string {
	tipo := ncf
	if len(tipo) > 3 {
		tipo = tipo[:3]
	}
	switch tipo {
	case "B01":
		return "Comprobante de Credito Fiscal"
	case "B02":
		return "Comprobante Consumidor Final"
	}
	return "Comprobante " + tipo
}
