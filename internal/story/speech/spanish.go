package speech

import (
	"strings"

	"golang.org/x/text/language"
)

var (
	esUnits    = []string{"", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve"}
	esTeens    = []string{"diez", "once", "doce", "trece", "catorce", "quince", "dieciséis", "diecisiete", "dieciocho", "diecinueve"}
	esTwenties = []string{"veinte", "veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco", "veintiséis", "veintisiete", "veintiocho", "veintinueve"}
	esTens     = []string{"", "diez", "veinte", "treinta", "cuarenta", "cincuenta", "sesenta", "setenta", "ochenta", "noventa"}
	esHundreds = []string{"", "ciento", "doscientos", "trescientos", "cuatrocientos", "quinientos", "seiscientos", "setecientos", "ochocientos", "novecientos"}
	esDigits   = []string{"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve"}

	esUnitWords = map[string]string{
		"mm":  "milímetros",
		"cm":  "centímetros",
		"m":   "metros",
		"km":  "kilómetros",
		"mg":  "miligramo",
		"g":   "gramo",
		"kg":  "kilogramo",
		"ms":  "milisegundos",
		"s":   "segundos",
		"min": "minutos",
		"h":   "horas",
		"hz":  "hercios",
		"mhz": "megahercios",
		"ghz": "gigahercios",
		"%":   "por ciento",
		"usd": "dólares",
		"$":   "dólares",
	}
)

// Spanish spells whole numbers up to 999999.
type Spanish struct{}

func (Spanish) Tag() language.Tag { return language.Spanish }

func (Spanish) MaxNumber() int { return 999999 }

func (Spanish) DigitWord(d int) string {
	if d < 0 || d > 9 {
		return ""
	}
	return esDigits[d]
}

func (Spanish) UnitToWords(unit string) string {
	if w, ok := esUnitWords[strings.ToLower(unit)]; ok {
		return w
	}
	return unit
}

func (es Spanish) NumberToWords(n int) string {
	if n <= 0 {
		return "cero"
	}
	if n > es.MaxNumber() {
		n = es.MaxNumber()
	}

	var parts []string
	switch thousands := n / 1000; {
	case thousands == 1:
		parts = append(parts, "mil")
	case thousands > 1:
		parts = append(parts, apocope(esBelowThousand(thousands))+" mil")
	}
	if rest := n % 1000; rest > 0 {
		parts = append(parts, esBelowThousand(rest))
	}
	return strings.Join(parts, " ")
}

// apocope shortens a trailing "uno" before "mil" (veintiún mil, ciento un mil).
func apocope(words string) string {
	switch {
	case strings.HasSuffix(words, "veintiuno"):
		return strings.TrimSuffix(words, "veintiuno") + "veintiún"
	case strings.HasSuffix(words, "uno"):
		return strings.TrimSuffix(words, "uno") + "un"
	}
	return words
}

func esBelowHundred(n int) string {
	switch {
	case n < 10:
		return esUnits[n]
	case n < 20:
		return esTeens[n-10]
	case n < 30:
		return esTwenties[n-20]
	}
	if u := n % 10; u > 0 {
		return esTens[n/10] + " y " + esUnits[u]
	}
	return esTens[n/10]
}

func esBelowThousand(n int) string {
	if n == 100 {
		return "cien"
	}
	h, rest := n/100, n%100
	switch {
	case h == 0:
		return esBelowHundred(rest)
	case rest == 0:
		return esHundreds[h]
	}
	return esHundreds[h] + " " + esBelowHundred(rest)
}
