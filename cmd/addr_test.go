package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080"},
		{name: "localhost", addr: "localhost:3400"},
		{name: "loopback ip", addr: "127.0.0.1:3400"},
		{name: "any port zero", addr: ":0"},
		{name: "hostname", addr: "api.internal:8080"},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "non-numeric port", addr: "localhost:http", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "whitespace host", addr: "bad host:8080", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}
