package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
)

// Command execs an ad-hoc shell command inside the runtime's live container
// (POST /runtimes/{id}/commands). The endpoint is not one of the named
// components (C1-C7); it is routed onto the pod I/O adapter the same way C5
// reaches pod-side state, since "run a command in the runtime container" is
// exactly what that adapter already does for file reads.
func (inv *Invoker) Command(ctx context.Context, runtimeID, command string, timeout int) (string, *apierrors.Error) {
	if timeout <= 0 {
		timeout = int(constants.DefaultExecutionTimeout.Seconds())
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	podIP, apiErr := inv.firstPodIP(cmdCtx, runtimeID)
	if apiErr != nil {
		return "", apiErr
	}
	if podIP == "" {
		return "", apierrors.RuntimeNotFound(fmt.Sprintf("No pod found for runtime %q", runtimeID))
	}

	pod, err := inv.podForIP(cmdCtx, podIP)
	if err != nil {
		return "", apierrors.GeneralUnknown(err.Error())
	}
	if pod == "" {
		return "", apierrors.RuntimeNotFound(fmt.Sprintf("No pod found for runtime %q", runtimeID))
	}

	output, err := inv.pods.RunCommand(cmdCtx, pod, constants.RuntimeContainerName, command)
	if err != nil {
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return "", apierrors.CommandTimeout(fmt.Sprintf("Command timed out after %ds", timeout))
		}
		if errors.Is(err, constants.ErrExecutionFailed) {
			return "", apierrors.CommandFailed(err.Error())
		}
		return "", apierrors.GeneralUnknown(err.Error())
	}
	return output, nil
}
