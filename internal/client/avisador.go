package client

import "github.com/rs/zerolog/log"

// Avisador surfaces transient, user-facing messages from the panel
// managers. Failures never propagate to the view layer; they end up here.
type Avisador interface {
	Advertencia(mensaje string)
	Notificar(mensaje string)
}

// LogAvisador is the default Avisador, writing through zerolog
type LogAvisador struct{}

// Advertencia surfaces a warning-level message
func (LogAvisador) Advertencia(mensaje string) {
	log.Warn().Msg(mensaje)
}

// Notificar surfaces an informational toast-style message
func (LogAvisador) Notificar(mensaje string) {
	log.Info().Msg(mensaje)
}
