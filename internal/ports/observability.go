package ports

import "github.com/qqncnc/VPS-Traffic-Guardian/internal/domain"

// Observability receives logs, metrics, and mode-transition records from the
// control loop.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	SetGauge(name string, v float64)

	// RecordTransition emits the structured record required on every mode
	// change: {timestamp, old_mode, new_mode, reason, sample}.
	RecordTransition(oldMode, newMode domain.Mode, reason string, s domain.Sample)
}

type Field struct {
	Key   string
	Value any
}
