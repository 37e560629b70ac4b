package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const gateQuery = "data.chabaqa.gate.allow"

// DefaultPolicy is the Rego module used when no policy file is configured. It encodes the same rules as StaticAuthorizer.
const DefaultPolicy = `package chabaqa.gate

default allow := false

restricted if input.class in {"admin_only", "creator_only"}

allow if not restricted

allow if {
	input.class == "admin_only"
	input.role == "admin"
}

allow if {
	input.class == "creator_only"
	input.role in {"creator", "admin"}
}
`

// OPAAuthorizer evaluates route access with an OPA Rego policy. Evaluation failures fall back to the static rules.
type OPAAuthorizer struct {
	query    rego.PreparedEvalQuery
	fallback RouteAuthorizer
}

// NewOPAAuthorizer compiles module (DefaultPolicy when empty) and prepares the allow query.
func NewOPAAuthorizer(ctx context.Context, module string) (*OPAAuthorizer, error) {
	if module == "" {
		module = DefaultPolicy
	}
	pq, err := rego.New(
		rego.Query(gateQuery),
		rego.Module("gate.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile gate policy: %w", err)
	}
	return &OPAAuthorizer{query: pq, fallback: StaticAuthorizer{}}, nil
}

// NewOPAAuthorizerFromFile reads the Rego module at path. An empty path uses DefaultPolicy.
func NewOPAAuthorizerFromFile(ctx context.Context, path string) (*OPAAuthorizer, error) {
	if path == "" {
		return NewOPAAuthorizer(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gate policy: %w", err)
	}
	return NewOPAAuthorizer(ctx, string(b))
}

// AllowRoute implements RouteAuthorizer. An undefined or non-boolean result denies.
func (a *OPAAuthorizer) AllowRoute(ctx context.Context, in RouteInput) (bool, error) {
	allowed, err := a.eval(ctx, in)
	if err != nil {
		slog.WarnContext(ctx, "policy: evaluation failed, using static rules", "path", in.Path, "error", err)
		return a.fallback.AllowRoute(ctx, in)
	}
	return allowed, nil
}

func (a *OPAAuthorizer) eval(ctx context.Context, in RouteInput) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, _ := rs[0].Expressions[0].Value.(bool)
	return v, nil
}

// HealthCheck verifies that the prepared policy evaluates. It does not use the fallback.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	if _, err := a.eval(ctx, RouteInput{Path: "/", Class: "public"}); err != nil {
		return fmt.Errorf("eval gate policy: %w", err)
	}
	return nil
}
