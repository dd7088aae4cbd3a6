// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package config loads SkyDriver's runtime configuration from environment
// variables, the authoritative source named throughout spec §6. The shape
// mirrors the teacher's config.Config struct (nested sub-configs, Get*
// accessors with sane defaults) but the source is env vars via viper's
// AutomaticEnv instead of a mounted YAML file — SkyDriver runs as a set of
// Kubernetes-deployed processes configured purely through their Pod env.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tunables named explicitly in spec §4 and §6.
const (
	HighPriorityThreshold = 10

	DefaultMaxAttempts            = 5
	DefaultShortDelay             = 3 * time.Second
	DefaultLongDelay              = 60 * time.Second
	DefaultWatchdogDelay          = 5 * time.Minute
	DefaultWaitBeforeTeardown     = 60 * time.Second
	DefaultBacklogStaleThreshold  = 90 * time.Second
	DefaultDockerTagCacheTTL      = 5 * time.Minute
	DefaultEWMSCacheTTL           = 60 * time.Second
	DefaultWatchdogWindowMin      = time.Hour
	DefaultWatchdogWindowMax      = 10 * time.Minute
)

type Mongo struct {
	Host     string
	Port     int
	AuthUser string
	AuthPass string
	Database string
}

type REST struct {
	Host              string
	Port              int
	AuthAudience      string
	AuthOpenIDURL     string
	DockerRegistryURL string

	// SelfAddress is this deployment's own base URL, used by the pod
	// watchdog to self-issue rescans (spec §4.3) through the ordinary
	// admission path rather than a watchdog-only shortcut.
	SelfAddress        string
	SelfTokenURL       string
	SelfClientID       string
	SelfClientSecret   string
}

type K8s struct {
	Namespace                string
	SecretName               string
	ApplicationName          string
	TTLSecondsAfterFinished  int32
	ActiveDeadlineSeconds    int64
	ScannerCPULimit          string
	ScannerCPURequest        string
	ScannerMemoryLimit       string
	InitCPULimit             string
	InitCPURequest           string
	SidecarCPULimit          string
	SidecarCPURequest        string
	KubectlImage             string
}

type EWMS struct {
	Address      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type S3 struct {
	URL       string
	AccessKey string
	SecretKey string
	Bucket    string
	ExpiresIn time.Duration

	// TokenURL/ClientID/ClientSecret mint a scoped, short-lived bearer
	// token (spec §4.5) for the s3-sidecar container's outbound calls,
	// separate from the long-lived AccessKey/SecretKey static credentials
	// (AccessKey is passed into the job as S3_ACCESS_KEY_ID).
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type Runner struct {
	BacklogDelay        time.Duration
	BacklogShortDelay   time.Duration
	BacklogMaxAttempts  int
	BacklogStale        time.Duration
	WatchdogDelay       time.Duration
	WaitBeforeTeardown  time.Duration
	ReaperSchedule      string
	ReaperGrace         time.Duration
}

type Image struct {
	ClientManagerImageWithTag string
	ThisImageWithTag          string
}

// Config is the fully resolved, process-wide configuration.
type Config struct {
	Mongo  Mongo
	REST   REST
	K8s    K8s
	EWMS   EWMS
	S3     S3
	Runner Runner
	Image  Image

	CI bool // test-mode flag; loaded but not read by any component
}

// Load reads configuration from the environment, applying the defaults named
// throughout the spec where a variable is unset.
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mongodb_port", 27017)
	v.SetDefault("rest_port", 8080)
	v.SetDefault("k8s_namespace", "skydriver")
	v.SetDefault("k8s_ttl_seconds_after_finished", 3600)
	v.SetDefault("k8s_active_deadline_seconds", 7200)
	v.SetDefault("scan_backlog_runner_delay", DefaultLongDelay.Seconds())
	v.SetDefault("scan_backlog_runner_short_delay", DefaultShortDelay.Seconds())
	v.SetDefault("scan_backlog_max_attempts", DefaultMaxAttempts)
	v.SetDefault("scan_pod_watchdog_delay", DefaultWatchdogDelay.Seconds())
	v.SetDefault("wait_before_teardown", DefaultWaitBeforeTeardown.Seconds())
	v.SetDefault("reaper_schedule", "0 */15 * * * *")
	v.SetDefault("reaper_grace", time.Hour.Seconds())
	v.SetDefault("s3_expires_in", 604800)

	cfg := &Config{
		Mongo: Mongo{
			Host:     v.GetString("mongodb_host"),
			Port:     v.GetInt("mongodb_port"),
			AuthUser: v.GetString("mongodb_auth_user"),
			AuthPass: v.GetString("mongodb_auth_pass"),
			Database: orDefault(v.GetString("mongodb_database"), "SkyDriver_DB"),
		},
		REST: REST{
			Host:              v.GetString("rest_host"),
			Port:              v.GetInt("rest_port"),
			AuthAudience:      v.GetString("auth_audience"),
			AuthOpenIDURL:     v.GetString("auth_openid_url"),
			DockerRegistryURL: v.GetString("docker_registry_url"),
			SelfAddress:       orDefault(v.GetString("rest_self_address"), "http://localhost:8080"),
			SelfTokenURL:      v.GetString("rest_self_token_url"),
			SelfClientID:      v.GetString("rest_self_client_id"),
			SelfClientSecret:  v.GetString("rest_self_client_secret"),
		},
		K8s: K8s{
			Namespace:               v.GetString("k8s_namespace"),
			SecretName:              v.GetString("k8s_secret_name"),
			ApplicationName:         orDefault(v.GetString("k8s_application_name"), "skydriver"),
			TTLSecondsAfterFinished: int32(v.GetInt("k8s_ttl_seconds_after_finished")),
			ActiveDeadlineSeconds:   int64(v.GetInt("k8s_active_deadline_seconds")),
			ScannerCPULimit:         orDefault(v.GetString("k8s_scanner_cpu_limit"), "2"),
			ScannerCPURequest:       orDefault(v.GetString("k8s_scanner_cpu_request"), "1"),
			ScannerMemoryLimit:      v.GetString("k8s_scanner_memory_limit"),
			InitCPULimit:            orDefault(v.GetString("k8s_init_cpu_limit"), "250m"),
			InitCPURequest:          orDefault(v.GetString("k8s_init_cpu_request"), "100m"),
			SidecarCPULimit:         orDefault(v.GetString("k8s_sidecar_cpu_limit"), "250m"),
			SidecarCPURequest:       orDefault(v.GetString("k8s_sidecar_cpu_request"), "100m"),
			KubectlImage:            orDefault(v.GetString("k8s_kubectl_image"), "bitnami/kubectl:latest"),
		},
		EWMS: EWMS{
			Address:      v.GetString("ewms_address"),
			TokenURL:     v.GetString("ewms_token_url"),
			ClientID:     v.GetString("ewms_client_id"),
			ClientSecret: v.GetString("ewms_client_secret"),
		},
		S3: S3{
			URL:          v.GetString("s3_url"),
			AccessKey:    v.GetString("s3_access_key_id"),
			SecretKey:    v.GetString("s3_secret_key"),
			Bucket:       v.GetString("s3_bucket"),
			ExpiresIn:    time.Duration(v.GetInt64("s3_expires_in")) * time.Second,
			TokenURL:     v.GetString("s3_token_url"),
			ClientID:     v.GetString("s3_client_id"),
			ClientSecret: v.GetString("s3_client_secret"),
		},
		Runner: Runner{
			BacklogDelay:       time.Duration(v.GetFloat64("scan_backlog_runner_delay") * float64(time.Second)),
			BacklogShortDelay:  time.Duration(v.GetFloat64("scan_backlog_runner_short_delay") * float64(time.Second)),
			BacklogMaxAttempts: v.GetInt("scan_backlog_max_attempts"),
			BacklogStale:       DefaultBacklogStaleThreshold,
			WatchdogDelay:      time.Duration(v.GetFloat64("scan_pod_watchdog_delay") * float64(time.Second)),
			WaitBeforeTeardown: time.Duration(v.GetFloat64("wait_before_teardown") * float64(time.Second)),
			ReaperSchedule:     v.GetString("reaper_schedule"),
			ReaperGrace:        time.Duration(v.GetFloat64("reaper_grace") * float64(time.Second)),
		},
		Image: Image{
			ClientManagerImageWithTag: v.GetString("clientmanager_image_with_tag"),
			ThisImageWithTag:          v.GetString("this_image_with_tag"),
		},
		CI: v.GetBool("ci"),
	}
	return cfg
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
