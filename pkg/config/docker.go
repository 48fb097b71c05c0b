package config

import (
	"net/url"
	"os"
	"sync"
)

const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker container.
// The /.dockerenv probe is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when
// running in a container, so PostgreSQL and Redis on the host stay reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveLoopback(host)
}

// ResolveEndpointForDocker applies ResolveHostForDocker to the host part of a
// URL. Self-hosted OpenAI-compatible endpoints (vLLM, Ollama) are usually
// configured as http://localhost:<port>/v1.
func ResolveEndpointForDocker(endpoint string) string {
	if !IsRunningInDocker() {
		return endpoint
	}
	return resolveEndpoint(endpoint)
}

func resolveLoopback(host string) string {
	if host == "localhost" || host == "127.0.0.1" {
		return dockerHostAlias
	}
	return host
}

func resolveEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	host := resolveLoopback(u.Hostname())
	if host == u.Hostname() {
		return endpoint
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	return u.String()
}
