package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/persistence/middleware"
	"github.com/aretw0/relay/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.ExecutionStore, cfg middleware.EncryptionConfig) ports.ExecutionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunExecutionStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	created, err := secure.Create(ctx, &domain.ExecutionRecord{
		WorkflowID: "wf",
		Status:     domain.StatusRunning,
		Input:      map[string]any{"secret": "my-secret-sauce"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Input["secret"] != "my-secret-sauce" {
		t.Errorf("Create must return the caller's input, got %v", created.Input)
	}
	if err := secure.Update(ctx, created.ID, domain.ExecutionUpdate{Status: domain.StatusSuccess, Output: "classified"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// The underlying store only sees envelopes.
	raw, err := underlying.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := raw.Input["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := raw.Input[middleware.EnvelopeKey]; !ok {
		t.Fatal("Expected envelope in input")
	}
	if out, ok := raw.Output.(map[string]any); !ok || out[middleware.EnvelopeKey] == nil {
		t.Fatalf("Expected envelope in output, got %v", raw.Output)
	}
	if raw.WorkflowID != "wf" || raw.Status != domain.StatusSuccess {
		t.Errorf("Index fields must stay readable, got %s/%s", raw.WorkflowID, raw.Status)
	}

	loaded, err := secure.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Input["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Input["secret"])
	}
	if loaded.Output != "classified" {
		t.Errorf("Expected 'classified', got %v", loaded.Output)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	rec, err := oldStore.Create(ctx, &domain.ExecutionRecord{WorkflowID: "wf", Input: map[string]any{"data": "encrypted-with-old-key"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := newStore.FindByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Input["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	// Output written with the new key cannot be read with the old one alone.
	if err := newStore.Update(ctx, rec.ID, domain.ExecutionUpdate{Status: domain.StatusSuccess, Output: "encrypted-with-new-key"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := oldStore.FindByID(ctx, rec.ID); err == nil {
		t.Error("Expected failure when loading new-key output with old-key middleware")
	}

	list, err := newStore.List(ctx, domain.ExecutionFilter{WorkflowID: "wf"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Output != "encrypted-with-new-key" {
		t.Errorf("List must decrypt records, got %+v", list)
	}
}

func TestEncryptionMiddleware_RejectsPlainPayloads(t *testing.T) {
	underlying := memory.NewStore()
	rec, err := underlying.Create(context.Background(), &domain.ExecutionRecord{WorkflowID: "wf", Input: map[string]any{"plain": true}})
	if err != nil {
		t.Fatal(err)
	}
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := secure.FindByID(context.Background(), rec.ID); err == nil {
		t.Error("Expected plain-text input to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	if err == nil {
		t.Fatal("Expected error for invalid key size")
	}

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t), FallbackKeys: [][]byte{[]byte("x")}})
	if err == nil {
		t.Fatal("Expected error for invalid fallback key size")
	}
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	if err != nil || string(got) != string(key) {
		t.Fatalf("ParseKey round trip failed: %v", err)
	}
	if _, err := middleware.ParseKey("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
