package client

import "testing"

func TestParseShareURL(t *testing.T) {
	tests := []struct {
		name       string
		link       string
		wantServer string
		wantRoom   string
		wantKey    string
		wantErr    bool
	}{
		{name: "plain", link: "https://share.example/r/abc123#KEY", wantServer: "https://share.example", wantRoom: "abc123", wantKey: "KEY"},
		{name: "port", link: "http://localhost:8080/r/abc#k-_", wantServer: "http://localhost:8080", wantRoom: "abc", wantKey: "k-_"},
		{name: "no key", link: "https://share.example/r/abc", wantErr: true},
		{name: "no room", link: "https://share.example/r/#KEY", wantErr: true},
		{name: "wrong path", link: "https://share.example/x/abc#KEY", wantErr: true},
		{name: "nested", link: "https://share.example/r/a/b#KEY", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, room, key, err := ParseShareURL(tt.link)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if server != tt.wantServer || room != tt.wantRoom || key != tt.wantKey {
				t.Errorf("got (%q, %q, %q)", server, room, key)
			}
		})
	}
}

func TestShareURL_RoundTrip(t *testing.T) {
	kc, _ := NewKeychain()
	link := ShareURL("https://share.example/", "room-1", kc)
	server, room, key, err := ParseShareURL(link)
	if err != nil {
		t.Fatal(err)
	}
	if server != "https://share.example" || room != "room-1" || key != kc.KeyB64() {
		t.Errorf("got (%q, %q, %q) from %s", server, room, key, link)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"bytes 0-0/10", 10, false},
		{"bytes 5-9/10", 10, false},
		{"bytes */10", 10, false},
		{"items 0-1/2", 0, true},
		{"bytes 0-1", 0, true},
		{"bytes 0-1/x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseContentRangeTotal(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseContentRangeTotal(%q) = %d, %v", tt.in, got, err)
		}
	}
}
