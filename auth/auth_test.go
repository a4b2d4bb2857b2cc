package auth

import (
	"bytes"
	"testing"

	"github.com/cordio/amqp91/wire"
)

func TestPlainResponseLayout(t *testing.T) {
	p := Plain{Username: "guest", Password: "secret"}
	resp, err := p.Response(nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0}
	want = append(want, []byte("guest")...)
	want = append(want, 0)
	want = append(want, []byte("secret")...)
	if !bytes.Equal(resp, want) {
		t.Fatalf("want %q, got %q", want, resp)
	}
	if p.Name() != "PLAIN" {
		t.Fatalf("expected mechanism name PLAIN, got %q", p.Name())
	}
}

func TestAMQPlainResponseIsBareTableBody(t *testing.T) {
	a := AMQPlain{Username: "guest", Password: "secret"}
	resp, err := a.Response(nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "AMQPLAIN" {
		t.Fatalf("expected mechanism name AMQPLAIN, got %q", a.Name())
	}

	r := bytes.NewReader(resp)
	seen := map[string]bool{}
	for r.Len() > 0 {
		key, err := readShortStringForTest(r)
		if err != nil {
			t.Fatal(err)
		}
		_, v, err := wire.ReadValue(r)
		if err != nil {
			t.Fatal(err)
		}
		seen[key] = true
		if key == "LOGIN" && v != "guest" {
			t.Fatalf("expected LOGIN=guest, got %v", v)
		}
		if key == "PASSWORD" && v != "secret" {
			t.Fatalf("expected PASSWORD=secret, got %v", v)
		}
	}
	if !seen["LOGIN"] || !seen["PASSWORD"] {
		t.Fatalf("expected both LOGIN and PASSWORD entries, saw %v", seen)
	}
}

func readShortStringForTest(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
