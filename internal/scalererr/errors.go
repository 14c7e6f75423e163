// Package scalererr defines the controller's error taxonomy as sentinel values
// so call sites can classify a failure with errors.Is instead of string matching.
package scalererr

import "errors"

var (
	// ErrMetricsTransport marks an HTTP/transport failure against the metrics backend.
	ErrMetricsTransport = errors.New("metrics transport error")

	// ErrMetricsShape marks a response that parsed but did not contain the expected scalar.
	ErrMetricsShape = errors.New("metrics response shape error")

	// ErrOrchestratorRead marks a failed read against the orchestrator API.
	ErrOrchestratorRead = errors.New("orchestrator read error")

	// ErrOrchestratorPatch marks a failed replica patch against the orchestrator API.
	ErrOrchestratorPatch = errors.New("orchestrator patch error")

	// ErrConfiguration marks a fatal start-up configuration failure.
	ErrConfiguration = errors.New("configuration error")
)
