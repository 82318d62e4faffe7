package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"
)

func serviceAccountJSON(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	doc, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "uploads@exambook.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return doc
}

func TestServiceAccountSignerSignsPayload(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw := serviceAccountJSON(t, key)

	for name, input := range map[string][]byte{
		"json":   raw,
		"base64": []byte(base64.StdEncoding.EncodeToString(raw)),
	} {
		t.Run(name, func(t *testing.T) {
			signer, err := NewServiceAccountSignerFromJSON(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signer.Email() != "uploads@exambook.iam.gserviceaccount.com" {
				t.Fatalf("unexpected email %q", signer.Email())
			}
			payload := []byte("GOOG4-RSA-SHA256\n20240310T120000Z")
			sig, err := signer.SignBytes(context.Background(), payload)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			sum := sha256.Sum256(payload)
			if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, sum[:], sig); err != nil {
				t.Fatalf("signature does not verify: %v", err)
			}
		})
	}
}

func TestServiceAccountSignerRejectsBadKeys(t *testing.T) {
	cases := map[string]string{
		"empty":         "  ",
		"not base64":    "%%%",
		"wrong type":    `{"type":"authorized_user","client_email":"a@b","private_key":"x"}`,
		"missing email": `{"type":"service_account","private_key":"x"}`,
		"missing pem":   `{"type":"service_account","client_email":"a@b","private_key":"not pem"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewServiceAccountSignerFromJSON([]byte(input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestServiceAccountSignerCancelledContext(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewServiceAccountSignerFromJSON(serviceAccountJSON(t, key))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := signer.SignBytes(ctx, []byte("payload")); err == nil {
		t.Fatalf("expected context error")
	}
}
