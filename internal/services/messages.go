package services

import "errors"

// localizedMessages holds the fixed assistant texts used when a turn cannot be answered.
var localizedMessages = map[string]struct {
	fallback string
	timeout  string
}{
	"en": {
		fallback: "Sorry, I couldn't get an answer from the model right now. Please try again.",
		timeout:  "The model took too long to answer. Please try again.",
	},
	"es": {
		fallback: "Lo siento, no he podido obtener una respuesta del modelo. Inténtalo de nuevo.",
		timeout:  "El modelo ha tardado demasiado en responder. Inténtalo de nuevo.",
	},
}

// FallbackMessage returns the assistant text recorded for a failed turn in the given language.
// Unknown languages use English.
func FallbackMessage(language string, err error) string {
	msgs, ok := localizedMessages[language]
	if !ok {
		msgs = localizedMessages["en"]
	}
	if errors.Is(err, ErrTimeout) {
		return msgs.timeout
	}
	return msgs.fallback
}
