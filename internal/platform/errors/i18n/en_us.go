package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown           = "UNKNOWN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeModelNotFound     = "MODEL_NOT_FOUND"
	CodeModelCorrupt      = "MODEL_CORRUPT"
	CodeNotConfigured     = "NOT_CONFIGURED"
	CodeNumericDegenerate = "NUMERIC_DEGENERATE"
)

var enUSMessages = map[Code]string{
	CodeUnknown:           "An unexpected error occurred",
	CodeInvalidInput:      "The scene state is malformed{{if .Reason}}: {{.Reason}}{{end}}",
	CodeModelNotFound:     "Model {{.Model}} was not found",
	CodeModelCorrupt:      "Model {{.Model}} could not be loaded",
	CodeNotConfigured:     "Model {{.Model}} does not provide reduced output",
	CodeNumericDegenerate: "The model produced a degenerate prediction",
}

var deDEMessages = map[Code]string{
	CodeUnknown:           "Ein unerwarteter Fehler ist aufgetreten",
	CodeInvalidInput:      "Der Szenenzustand ist fehlerhaft{{if .Reason}}: {{.Reason}}{{end}}",
	CodeModelNotFound:     "Modell {{.Model}} wurde nicht gefunden",
	CodeModelCorrupt:      "Modell {{.Model}} konnte nicht geladen werden",
	CodeNotConfigured:     "Modell {{.Model}} liefert keine reduzierte Ausgabe",
	CodeNumericDegenerate: "Das Modell lieferte eine entartete Vorhersage",
}
