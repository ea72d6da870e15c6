package orchestrator

import "github.com/open-runtimes/executor/constants"

// injectVariables merges caller-supplied variables with the protocol-
// specific environment the in-pod server needs to authenticate and bind.
// The v2 misspelling INERNAL_ is an external contract.
func injectVariables(version string, variables map[string]string, entrypoint, secret, hostname, cpus, memory, outputDirectory string) map[string]string {
	merged := make(map[string]string, len(variables)+8)
	for k, v := range variables {
		merged[k] = v
	}

	merged["CI"] = "true"

	switch version {
	case constants.VersionV2:
		merged["INTERNAL_RUNTIME_KEY"] = secret
		merged["INTERNAL_RUNTIME_ENTRYPOINT"] = entrypoint
		merged["INERNAL_EXECUTOR_HOSTNAME"] = hostname
	default:
		merged["OPEN_RUNTIMES_SECRET"] = secret
		merged["OPEN_RUNTIMES_ENTRYPOINT"] = entrypoint
		merged["OPEN_RUNTIMES_HOSTNAME"] = hostname
		merged["OPEN_RUNTIMES_CPUS"] = cpus
		merged["OPEN_RUNTIMES_MEMORY"] = memory
		if outputDirectory != "" {
			merged["OPEN_RUNTIMES_OUTPUT_DIRECTORY"] = outputDirectory
		}
	}

	return merged
}
