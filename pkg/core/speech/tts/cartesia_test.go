package tts

import "testing"

func TestNewCartesia(t *testing.T) {
	p := NewCartesia("api-key")
	if p.httpClient == nil {
		t.Fatal("provider should initialize http client")
	}
	if p.Name() != "cartesia" {
		t.Fatalf("name = %q, want cartesia", p.Name())
	}
}
