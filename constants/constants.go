package constants

import "time"

const (
	// Default values
	DefaultNamespace           = "default"
	DefaultS3Region            = "us-east-1"
	DefaultPort                = 3000
	DefaultMaintenanceInterval = 60 * time.Second
	DefaultInactiveThreshold   = 300 * time.Second
	DefaultBuildTimeout        = 600 // seconds
	DefaultExecutionTimeout    = 15 * time.Second

	// Environment variables
	EnvExecutorSecret       = "OPR_EXECUTOR_SECRET"
	EnvS3Endpoint           = "S3_ENDPOINT"
	EnvS3Bucket             = "S3_BUCKET"
	EnvS3AccessKeyID        = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey    = "S3_SECRET_ACCESS_KEY"
	EnvS3Region             = "S3_REGION"
	EnvNamespace            = "KUBERNETES_NAMESPACE"
	EnvPort                 = "PORT"
	EnvMaintenanceInterval  = "OPR_EXECUTOR_MAINTENANCE_INTERVAL"
	EnvInactiveThreshold    = "OPR_EXECUTOR_INACTIVE_THRESHOLD"
	EnvHostname             = "HOSTNAME"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogFormat            = "LOG_FORMAT"
	EnvCallbackURL          = "OPR_EXECUTOR_CALLBACK_URL"

	// Annotation namespace (external contract)
	AnnotationPrefix = "appwrite.io/"

	// Runtime versions
	VersionV2 = "v2"
	VersionV4 = "v4"
	VersionV5 = "v5"

	// Labels
	LabelRole       = "role"
	LabelRuntimeID  = "runtime-id"
	RoleRuntime     = "runtime"
	RoleBuild       = "build"

	// Container names used inside pods
	BuildContainerName   = "build-container"
	RuntimeContainerName = "runtime-container"

	// Lease
	MaintenanceLeaseName = "executor-maintenance-lock"
	LeaseDuration        = 30 * time.Second

	// Runtime port the in-pod server listens on
	RuntimePort = 3000

	// File and directory permissions
	DefaultDirPermissions  = 0o755
	DefaultFilePermissions = 0o644

	// Logging paths written by the in-pod builder/runtime (script(1) side-channel)
	V2BuildLogPath      = "/var/tmp/logs.txt"
	V4V5BuildLogDir     = "/tmp/logging"
	V4V5BuildLogPath    = V4V5BuildLogDir + "/logs.txt"
	V4V5BuildTimingPath = V4V5BuildLogDir + "/timings.txt"
	RuntimeLogDir       = "/mnt/logs"

	// Log truncation ceiling (§8)
	MaxExecutionLogBytes = 1 << 20 // 1 MiB
)
