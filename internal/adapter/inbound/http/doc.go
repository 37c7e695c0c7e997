// Package http is the inbound HTTP adapter: the JSON API the study group
// finder frontend talks to. Every sensitive route runs the submission gates
// through the service layer; this package only shapes requests and responses.
package http
