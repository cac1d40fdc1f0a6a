package policy

import (
	"context"
	"testing"
)

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cases := []struct {
		name  string
		input Input
		want  string
	}{
		{
			name: "bound session allowed",
			input: Input{
				Method:          "POST",
				Path:            "/runner/sessions/sess_1/events",
				SessionID:       "sess_1",
				AllowedSessions: []string{"sess_1"},
			},
			want: "allow",
		},
		{
			name: "foreign session denied",
			input: Input{
				Method:          "POST",
				Path:            "/runner/sessions/sess_2/events",
				SessionID:       "sess_2",
				AllowedSessions: []string{"sess_1"},
			},
			want: "deny",
		},
		{
			name: "no allowed sessions denied",
			input: Input{
				Method:    "POST",
				Path:      "/runner/sessions/sess_1/bind",
				SessionID: "sess_1",
			},
			want: "deny",
		},
		{
			name: "read-only coordinator query allowed",
			input: Input{
				Method: "GET",
				Path:   "/v1/sessions",
			},
			want: "allow",
		},
		{
			name: "write without session denied",
			input: Input{
				Method: "POST",
				Path:   "/v1/runs",
			},
			want: "deny",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tc.input)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("decision = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package gateway_policy\ndecision = {"); err == nil {
		t.Fatal("expected error for malformed policy")
	}
}
