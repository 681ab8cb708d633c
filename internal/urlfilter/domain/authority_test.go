package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseAuthority(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKey  ShardKey
		wantSubs []string
		wantErr  bool
	}{
		{
			name:     "parent domain only",
			input:    "cisco.com:443",
			wantKey:  "cisco.com:443",
			wantSubs: []string{},
		},
		{
			name:     "single subdomain",
			input:    "www.cisco.com:443",
			wantKey:  "cisco.com:443",
			wantSubs: []string{"www"},
		},
		{
			name:     "nested subdomains ordered innermost first",
			input:    "www.badguys.cisco.com:443",
			wantKey:  "cisco.com:443",
			wantSubs: []string{"badguys", "www"},
		},
		{
			name:     "uppercase host normalized",
			input:    "WWW.Cisco.COM:8080",
			wantKey:  "cisco.com:8080",
			wantSubs: []string{"www"},
		},
		{
			name:     "trailing dot stripped",
			input:    "example.org.:80",
			wantKey:  "example.org:80",
			wantSubs: []string{},
		},
		{
			name:     "underscored label kept",
			input:    "_dmarc.example.com:443",
			wantKey:  "example.com:443",
			wantSubs: []string{"_dmarc"},
		},
		{
			name:    "missing port",
			input:   "cisco.com",
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			input:   "cisco.com:https",
			wantErr: true,
		},
		{
			name:    "port zero",
			input:   "cisco.com:0",
			wantErr: true,
		},
		{
			name:    "port out of range",
			input:   "cisco.com:70000",
			wantErr: true,
		},
		{
			name:    "single label host",
			input:   "localhost:8080",
			wantErr: true,
		},
		{
			name:    "empty label",
			input:   "www..com:443",
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, subs, err := ParseAuthority(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got key=%q subs=%v", key, subs)
				}
				if !errors.Is(err, ErrMalformedAuthority) {
					t.Errorf("expected ErrMalformedAuthority, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if len(subs) != len(tt.wantSubs) || (len(subs) > 0 && !reflect.DeepEqual(subs, tt.wantSubs)) {
				t.Errorf("subdomains = %v, want %v", subs, tt.wantSubs)
			}
		})
	}
}

func TestParseAuthority_Unicode(t *testing.T) {
	key, subs, err := ParseAuthority("bücher.example.com:443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "example.com:443" {
		t.Errorf("key = %q, want example.com:443", key)
	}
	if len(subs) != 1 || subs[0] != "xn--bcher-kva" {
		t.Errorf("subdomains = %v, want punycode label", subs)
	}
}

func TestSplitPathSegments(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{"empty", "", nil},
		{"root", "/", nil},
		{"repeated slashes only", "///", nil},
		{"simple", "/a/b", []string{"a", "b"}},
		{"trailing slash", "/a/b/", []string{"a", "b"}},
		{"doubled slash collapses", "/a//b", []string{"a", "b"}},
		{"no leading slash", "a/b", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPathSegments(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitPathSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
