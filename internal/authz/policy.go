package authz

// Decision is the outcome of a policy evaluation.
type Decision int

const (
	// Denied refuses the operation.
	Denied Decision = iota
	// Granted allows the operation.
	Granted
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == Granted {
		return "granted"
	}
	return "denied"
}

// Evaluator maps policy identifiers to required permission names and answers
// authorization queries. Policies are registered once at startup; evaluation
// is a pure function of (context, policy id) and is safe for arbitrary
// concurrent use.
type Evaluator struct {
	policies map[string]string
}

// NewEvaluator constructs an Evaluator. Unregistered policy ids fall back to
// requiring the permission named by the id itself, the one-policy-per-
// permission default.
func NewEvaluator() *Evaluator {
	return &Evaluator{policies: make(map[string]string)}
}

// Register binds a policy id to a required permission name. Not safe to call
// concurrently with Authorize; register during startup.
func (e *Evaluator) Register(policyID, permission string) {
	e.policies[policyID] = permission
}

// Authorize returns Granted iff the context holds the permission the policy
// requires.
func (e *Evaluator) Authorize(c Context, policyID string) Decision {
	required, ok := e.policies[policyID]
	if !ok {
		required = policyID
	}
	if c.Has(required) {
		return Granted
	}
	return Denied
}
