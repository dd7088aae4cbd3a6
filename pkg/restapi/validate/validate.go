// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package validate performs admission-time validation of a scan request
// (spec §4.1): docker tag resolution against the image registry, human-size
// parsing, classifier schema checks, and known-cluster membership. Every
// failure here is an *apierrors.Error coded CodeValidation, which the REST
// layer's HandleErrors middleware turns into 400 with cause (spec §7).
//
// Docker tag resolution is cached with patrickmn/go-cache at a 5-minute TTL
// (spec §4.1), the same cache library the EWMS adapter (pkg/ewms) uses for
// its read-path cache.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/pkg/clusterregistry"
)

const (
	MaxClassifiers    = 15
	MaxClassifierKeyLen = 15
)

var semverTagRe = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)$`)
var sizeRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?)[Bb]?$`)

// DebugMode enum values accepted in ScanRequest.debug_mode (spec §4.1).
const DebugModeClientLogs = "CLIENT_LOGS"

// Registry is the docker-tag-resolution surface, an HTTP GET against a
// configurable registry API, cached per spec §4.1's 5-minute TTL.
type Registry struct {
	http  *resty.Client
	cache *cache.Cache
}

// NewRegistry builds a Registry client against baseURL (DOCKER_REGISTRY_URL).
func NewRegistry(baseURL string) *Registry {
	return &Registry{
		http:  resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// ResolveDockerTag normalises and resolves dockerTag against the registry.
// "latest" resolves to the most recent semver-matching tag; "vX.Y.Z" tags
// are normalised to "X.Y.Z"; unknown tags are rejected (spec §4.1).
func (r *Registry) ResolveDockerTag(ctx context.Context, image, dockerTag string) (string, error) {
	if dockerTag == "" {
		return "", apierrors.NewValidation("docker_tag is required")
	}

	if dockerTag == "latest" {
		key := "latest:" + image
		if v, ok := r.cache.Get(key); ok {
			return v.(string), nil
		}
		resolved, err := r.resolveLatest(ctx, image)
		if err != nil {
			return "", err
		}
		r.cache.SetDefault(key, resolved)
		return resolved, nil
	}

	m := semverTagRe.FindStringSubmatch(dockerTag)
	if m == nil {
		return "", apierrors.NewValidationf("docker_tag %q is not a recognised tag form", dockerTag)
	}
	normalised := m[1]

	key := "tag:" + image + ":" + normalised
	if v, ok := r.cache.Get(key); ok {
		if !v.(bool) {
			return "", apierrors.NewValidationf("docker_tag %q not found in registry", normalised)
		}
		return normalised, nil
	}
	exists, err := r.tagExists(ctx, image, normalised)
	if err != nil {
		return "", err
	}
	r.cache.SetDefault(key, exists)
	if !exists {
		return "", apierrors.NewValidationf("docker_tag %q not found in registry", normalised)
	}
	return normalised, nil
}

func (r *Registry) resolveLatest(ctx context.Context, image string) (string, error) {
	var tags []string
	resp, err := r.http.R().SetContext(ctx).SetResult(&tags).Get(fmt.Sprintf("/v2/%s/tags/list", image))
	if err != nil || resp.IsError() {
		return "", apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("docker registry lookup failed for %s", image).WithError(err)
	}
	best := ""
	for _, t := range tags {
		m := semverTagRe.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		if best == "" || semverLess(best, m[1]) {
			best = m[1]
		}
	}
	if best == "" {
		return "", apierrors.NewValidationf("no semver tags found for %s", image)
	}
	return best, nil
}

func (r *Registry) tagExists(ctx context.Context, image, tag string) (bool, error) {
	resp, err := r.http.R().SetContext(ctx).Head(fmt.Sprintf("/v2/%s/manifests/%s", image, tag))
	if err != nil {
		return false, apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("docker registry lookup failed for %s:%s", image, tag).WithError(err)
	}
	return !resp.IsError(), nil
}

func semverLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < 3; i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			return na < nb
		}
	}
	return false
}

// ParseSize parses a human-readable size ("4G", "512M", "1.5T") to bytes
// (spec §4.1: worker_memory, worker_disk, scanner_server_memory).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, apierrors.NewValidationf("invalid size %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, apierrors.NewValidationf("invalid size %q", s)
	}
	var mult float64 = 1
	switch m[2] {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	case "T":
		mult = 1 << 40
	}
	return int64(n * mult), nil
}

// ValidateClassifiers enforces spec §3's classifier shape: at most
// MaxClassifiers entries, each key at most MaxClassifierKeyLen characters,
// values restricted to string/bool/number.
func ValidateClassifiers(classifiers map[string]interface{}) error {
	if len(classifiers) > MaxClassifiers {
		return apierrors.NewValidationf("classifiers has %d entries, max is %d", len(classifiers), MaxClassifiers)
	}
	for k, v := range classifiers {
		if len(k) > MaxClassifierKeyLen {
			return apierrors.NewValidationf("classifier key %q exceeds %d characters", k, MaxClassifierKeyLen)
		}
		switch vv := v.(type) {
		case string:
			if len(vv) > MaxClassifierKeyLen {
				return apierrors.NewValidationf("classifier %q value exceeds %d characters", k, MaxClassifierKeyLen)
			}
		case bool, float64, int, int64:
			// numeric/bool values have no length bound.
		default:
			return apierrors.NewValidationf("classifier %q has an unsupported value type %T", k, v)
		}
	}
	return nil
}

// ValidateClusters checks every requested cluster name is a KNOWN_CLUSTERS
// member and, when debug_mode includes CLIENT_LOGS, that its worker count
// does not exceed the cluster's per-cluster debug cap (spec §4.1).
func ValidateClusters(reg *clusterregistry.Registry, clusters map[string]int, debugMode []string) error {
	debugLogs := false
	for _, d := range debugMode {
		if d == DebugModeClientLogs {
			debugLogs = true
		}
	}

	names := make([]string, 0, len(clusters))
	for name := range clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		nWorkers := clusters[name]
		c, err := reg.Lookup(name)
		if err != nil {
			return apierrors.NewValidationf("unknown cluster %q", name)
		}
		if debugLogs && c.MaxClientsDuringDebugMode > 0 && nWorkers > c.MaxClientsDuringDebugMode {
			return apierrors.NewValidationf(
				"cluster %q requests %d workers but debug_mode caps it at %d",
				name, nWorkers, c.MaxClientsDuringDebugMode)
		}
	}
	return nil
}

// ValidateNSides checks every nsides key parses as an integer pixel-nside
// value and every value is a positive reco-time count.
func ValidateNSides(nsides map[string]int) error {
	if len(nsides) == 0 {
		return apierrors.NewValidation("nsides must have at least one entry")
	}
	for k, v := range nsides {
		if _, err := strconv.Atoi(k); err != nil {
			return apierrors.NewValidationf("nsides key %q is not an integer", k)
		}
		if v <= 0 {
			return apierrors.NewValidationf("nsides[%s] must be positive, got %d", k, v)
		}
	}
	return nil
}

// ValidatePredictiveScanThreshold checks t is in (0, 1].
func ValidatePredictiveScanThreshold(t float64) error {
	if t <= 0 || t > 1 {
		return apierrors.NewValidationf("predictive_scanning_threshold must be in (0,1], got %g", t)
	}
	return nil
}

// ValidateRecoAlgo checks reco is non-empty with no whitespace.
func ValidateRecoAlgo(reco string) error {
	if reco == "" {
		return apierrors.NewValidation("reco_algo is required")
	}
	if strings.ContainsAny(reco, " \t\n\r") {
		return apierrors.NewValidationf("reco_algo %q must not contain whitespace", reco)
	}
	return nil
}
