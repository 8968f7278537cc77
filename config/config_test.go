package config

import (
	"testing"
)

const testConfig = `
cache_dir: /tmp/tapecache-test
defaults:
  save_only: true
  response:
    transform_headers:
      - field: x-default
        template: default
targets:
  svcA:
    url: https://upstream.example
    save_only: false
    request:
      transform_body:
        - field: injected
          template: "{timestamp}"
  svcB:
    url: https://other.example
`

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheDir != "/tmp/tapecache-test" {
		t.Fatalf("cache_dir is %q", cfg.CacheDir)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("got %d targets", len(cfg.Targets))
	}
}

func TestResolveTargetOverridesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	svcA, ok := cfg.Resolve("svcA")
	if !ok {
		t.Fatal("svcA not resolved")
	}
	if svcA.URL != "https://upstream.example" {
		t.Fatalf("url is %q", svcA.URL)
	}
	if svcA.SaveOnly {
		t.Fatal("target save_only=false did not override the default")
	}
	if len(svcA.Request.Body) != 1 || svcA.Request.Body[0].Field != "injected" {
		t.Fatalf("request transforms: %+v", svcA.Request)
	}
	// global default applies where the target is silent
	if len(svcA.Response.Headers) != 1 || svcA.Response.Headers[0].Field != "x-default" {
		t.Fatalf("response transforms: %+v", svcA.Response)
	}
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}

	svcB, ok := cfg.Resolve("svcB")
	if !ok {
		t.Fatal("svcB not resolved")
	}
	if !svcB.SaveOnly {
		t.Fatal("default save_only not applied")
	}
	if len(svcB.Request.Body) != 0 {
		t.Fatalf("request transforms: %+v", svcB.Request)
	}
}

func TestResolveUnknownTarget(t *testing.T) {
	cfg, err := LoadBytes([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.Resolve("nope"); ok {
		t.Fatal("unknown target resolved")
	}
}

func TestLoadBytesRejectsEmptyTargets(t *testing.T) {
	if _, err := LoadBytes([]byte("cache_dir: /tmp")); err == nil {
		t.Fatal("config without targets accepted")
	}
}

func TestLoadBytesRejectsTargetWithoutURL(t *testing.T) {
	doc := "targets:\n  svcA:\n    save_only: true\n"
	if _, err := LoadBytes([]byte(doc)); err == nil {
		t.Fatal("target without url accepted")
	}
}
