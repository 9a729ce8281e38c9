// Package version reports the gateway's build version.
//
// Version, commit and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/whisper-gateway/version.Version=1.2.0"
package version
