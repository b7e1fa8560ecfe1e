package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	want := Defaults()
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadOverlaysOnlySetFields(t *testing.T) {
	dir, err := ioutil.TempDir("", "narwhal-config")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "narwhal.yml")
	body := []byte("poll_interval: 30s\nbackend: docker\ngithub_owner: codepr\n")
	if err := ioutil.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.Backend != "docker" {
		t.Errorf("Backend = %s, want docker", cfg.Backend)
	}
	if cfg.GitHubOwner != "codepr" {
		t.Errorf("GitHubOwner = %s, want codepr", cfg.GitHubOwner)
	}
	if cfg.HeartbeatTimeout != Defaults().HeartbeatTimeout {
		t.Errorf("HeartbeatTimeout should fall back to default, got %s", cfg.HeartbeatTimeout)
	}
}

func TestLoadOverlaysGitBackendFields(t *testing.T) {
	dir, err := ioutil.TempDir("", "narwhal-config-git")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "narwhal.yml")
	body := []byte("backend: git\ngit_remote_url: https://example.com/repo.git\n")
	if err := ioutil.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if cfg.Backend != "git" {
		t.Errorf("Backend = %s, want git", cfg.Backend)
	}
	if cfg.GitRemoteURL != "https://example.com/repo.git" {
		t.Errorf("GitRemoteURL = %s, want https://example.com/repo.git", cfg.GitRemoteURL)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/narwhal.yml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
