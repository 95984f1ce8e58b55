package httpserver

import (
	"strings"
	"testing"
)

type testPayload struct {
	Name     string `json:"name" validate:"required,min=3"`
	Replicas int    `json:"replicas" validate:"gte=0"`
	Status   string `json:"status" validate:"omitempty,oneof=pending running failed"`
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid body",
			body:    `{"name":"worker-1","replicas":2}`,
			wantErr: false,
		},
		{
			name:    "empty body fails required validation",
			body:    "",
			wantErr: true,
			errMsg:  "name: this field is required",
		},
		{
			name:    "invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "unknown field",
			body:    `{"name":"worker-1","unknown":"field"}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "trailing data",
			body:    `{"name":"worker-1"}{"extra":true}`,
			wantErr: true,
			errMsg:  "request body must contain a single JSON object",
		},
		{
			name:    "negative replicas",
			body:    `{"name":"worker-1","replicas":-1}`,
			wantErr: true,
			errMsg:  "replicas: must be greater than or equal to 0",
		},
		{
			name:    "bad status enum",
			body:    `{"name":"worker-1","status":"exploded"}`,
			wantErr: true,
			errMsg:  "status: must be one of: pending running failed",
		},
		{
			name:    "name too short",
			body:    `{"name":"ab"}`,
			wantErr: true,
			errMsg:  "name: must be at least 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p testPayload
			err := DecodeBody([]byte(tt.body), &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeBody() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestDecodeBodyReportsEveryInvalidField(t *testing.T) {
	var p testPayload
	err := DecodeBody([]byte(`{"name":"ab","replicas":-1}`), &p)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "name:") || !strings.Contains(err.Error(), "replicas:") {
		t.Fatalf("error = %q, want both fields reported", err.Error())
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{"CreatedAt", "created_at"},
		{"ID", "i_d"},
		{"PageSize", "page_size"},
		{"lowercase", "lowercase"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := toSnakeCase(tt.in)
			if got != tt.want {
				t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
