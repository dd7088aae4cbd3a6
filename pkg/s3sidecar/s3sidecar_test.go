// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package s3sidecar

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForFile_ReturnsImmediatelyIfAlreadyPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "startup.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	cfg := withDefaults(Config{WatchPath: path, Timeout: time.Second})
	err := waitForFile(context.Background(), cfg)
	assert.NoError(t, err)
}

func TestWaitForFile_TimesOutIfNeverWritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never-written.json")

	cfg := withDefaults(Config{WatchPath: path, Timeout: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	err := waitForFile(context.Background(), cfg)
	assert.Error(t, err)
}

func TestWaitForFile_DetectsFileWrittenMidWait(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "startup.json")

	cfg := withDefaults(Config{WatchPath: path, Timeout: time.Second, PollInterval: 10 * time.Millisecond})
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("{}"), 0o644)
	}()

	err := waitForFile(context.Background(), cfg)
	assert.NoError(t, err)
}

func TestS3Credentials_PrefersTokenOverStaticKeys(t *testing.T) {
	cfg := Config{Token: "tok123", AccessKeyID: "AKIA", SecretKey: "secret"}
	creds := s3Credentials(cfg)
	v, err := creds.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok123", v.AccessKeyID)
}

func TestHostOnly_StripsScheme(t *testing.T) {
	assert.Equal(t, "s3.example.org", hostOnly("https://s3.example.org"))
	assert.Equal(t, "s3.example.org", hostOnly("http://s3.example.org"))
	assert.Equal(t, "s3.example.org", hostOnly("s3.example.org"))
}

func TestIsSecure(t *testing.T) {
	assert.True(t, isSecure("https://s3.example.org"))
	assert.False(t, isSecure("http://s3.example.org"))
}
