// Package runtimestate reads and writes the lifecycle fields that live as
// annotations on a runtime's Deployment (the "runtime state accessor").
package runtimestate

import "github.com/open-runtimes/executor/constants"

// Annotation field names, without the appwrite.io/ prefix.
const (
	FieldVersion           = "version"
	FieldSecret            = "secret"
	FieldHostname          = "hostname"
	FieldCreated           = "created"
	FieldUpdated           = "updated"
	FieldStatus            = "status"
	FieldInitialised       = "initialised"
	FieldListening         = "listening"
	FieldLastExecutionTime = "last-execution-time"
)

// Annotation returns the full appwrite.io/-prefixed annotation key for field.
func Annotation(field string) string {
	return constants.AnnotationPrefix + field
}

func DeploymentName(id string) string {
	return "dep-" + id
}

func ServiceName(id string) string {
	return "svc-" + id
}
